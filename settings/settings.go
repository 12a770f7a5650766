// Package settings holds the shared editor settings snapshot and its
// persistence stores. One snapshot is shared by every session on a
// page; sessions copy it at construction and refresh only on explicit
// updates.
package settings

// Snapshot is a flat setting name to value mapping. Values are bool,
// string or float64 after coercion.
type Snapshot map[string]any

// Defaults returns the documented default for every known setting.
// Every key the behavior registry knows must appear here, so a
// persisted blob that predates a key still yields a complete snapshot.
func Defaults() Snapshot {
	return Snapshot{
		"lineNumbers":         true,
		"activeLineHighlight": true,
		"autocompletion":      false,
		"lineWrapping":        false,
		"flash":               true,
		"tooltips":            false,
		"bracketMatching":     false,
		"fontSize":            float64(18),
		"fontFamily":          "monospace",
		"theme":               "plasma",
	}
}

// Coerce normalizes a raw setting value. Persisted snapshots round-trip
// through text serialization and come back with booleans as the literal
// strings "true"/"false"; this is the single chokepoint where they are
// restored. Every write path (defaults, programmatic update, persisted
// load) passes values through here.
func Coerce(v any) any {
	switch s := v.(type) {
	case string:
		if s == "true" {
			return true
		}
		if s == "false" {
			return false
		}
	case int:
		return float64(s)
	}
	return v
}

// CoerceAll returns a copy of snap with every value coerced.
func CoerceAll(snap Snapshot) Snapshot {
	out := make(Snapshot, len(snap))
	for k, v := range snap {
		out[k] = Coerce(v)
	}
	return out
}

// Merge lays patch over base, last writer wins per key. Keys in base
// that patch does not mention survive unchanged; neither input is
// mutated.
func Merge(base, patch Snapshot) Snapshot {
	out := make(Snapshot, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = Coerce(v)
	}
	return out
}
