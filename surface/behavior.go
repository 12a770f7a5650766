// Package surface wraps the text-editing collaborator: it defines the
// narrow contract an editor must satisfy, the registry of named
// behavior units, and the Adapter that keeps per-behavior compartments
// independently swappable.
package surface

import (
	"github.com/rjulian/strudel/debug"
	"github.com/rjulian/strudel/settings"
)

// Session is the view a behavior factory gets of the session it
// configures.
type Session interface {
	ID() string
	Setting(name string) any
}

// Fragment is one behavior's slice of editor configuration. Fragments
// are re-derived from scratch on every settings change, never mutated.
type Fragment struct {
	Behavior string
	Enabled  bool
	Options  map[string]any
}

// Factory derives a fragment from a setting value. Pure: same value
// and session state, same fragment.
type Factory func(value any, s Session) Fragment

func toggle(name string) Factory {
	return func(value any, _ Session) Fragment {
		on, _ := value.(bool)
		return Fragment{Behavior: name, Enabled: on}
	}
}

func option(name, key string) Factory {
	return func(value any, _ Session) Fragment {
		return Fragment{Behavior: name, Enabled: true, Options: map[string]any{key: value}}
	}
}

// registry is the fixed behavior table, populated once at startup.
// Keys mirror settings.Defaults.
var registry = map[string]Factory{
	"lineNumbers":         toggle("lineNumbers"),
	"activeLineHighlight": toggle("activeLineHighlight"),
	"autocompletion":      toggle("autocompletion"),
	"lineWrapping":        toggle("lineWrapping"),
	"flash":               toggle("flash"),
	"tooltips":            toggle("tooltips"),
	"bracketMatching":     toggle("bracketMatching"),
	"fontSize":            option("fontSize", "px"),
	"fontFamily":          option("fontFamily", "family"),
	"theme":               option("theme", "name"),
}

// Known reports whether a behavior with this name is registered.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Instantiate derives the fragment for a named behavior. The value
// passes through the settings coercion chokepoint first. An unknown
// name is logged and reported false, never a panic.
func Instantiate(name string, value any, s Session) (Fragment, bool) {
	factory, ok := registry[name]
	if !ok {
		debug.Log("surface", "unknown setting %q ignored", name)
		return Fragment{}, false
	}
	return factory(settings.Coerce(value), s), true
}
