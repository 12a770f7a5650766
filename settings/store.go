package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// storageKey is the fixed key the snapshot is persisted under,
// whatever the backing store.
const storageKey = "strudel-settings"

// Store persists the shared settings snapshot. Load returns only what
// was persisted; callers merge the result over Defaults themselves.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// FileStore keeps the snapshot as one JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store at an explicit path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore stores under ~/.config/strudel/settings.json
func DefaultFileStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".config", "strudel")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return NewFileStore(filepath.Join(dir, "settings.json")), nil
}

func (s *FileStore) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return decodeSnapshot(string(data)), nil
}

// Save merges snap over the on-disk document key by key, so writers of
// disjoint keys never clobber each other's values.
func (s *FileStore) Save(snap Snapshot) error {
	doc := "{}"
	if data, err := os.ReadFile(s.path); err == nil {
		doc = string(data)
	}
	doc, err := mergeDocument(doc, snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// decodeSnapshot reads a JSON document into a coerced Snapshot.
func decodeSnapshot(doc string) Snapshot {
	snap := Snapshot{}
	if !gjson.Valid(doc) {
		return snap
	}
	gjson.Parse(doc).ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.True:
			snap[key.String()] = true
		case gjson.False:
			snap[key.String()] = false
		case gjson.Number:
			snap[key.String()] = value.Float()
		default:
			snap[key.String()] = Coerce(value.String())
		}
		return true
	})
	return snap
}

// mergeDocument sets each snapshot key into an existing JSON document.
func mergeDocument(doc string, snap Snapshot) (string, error) {
	if !gjson.Valid(doc) {
		doc = "{}"
	}
	var err error
	for k, v := range snap {
		doc, err = sjson.Set(doc, k, Coerce(v))
		if err != nil {
			return "", fmt.Errorf("merge setting %q: %w", k, err)
		}
	}
	return doc, nil
}
