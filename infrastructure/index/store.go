package index

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kpath-ai/kpath/domain/search"
)

// Store implements search.SnapshotStore over a single directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) Store {
	return Store{dir: dir}
}

// Save persists the index to <dir>/<name>.vec and <dir>/<name>.meta.json.
func (s Store) Save(name string, idx search.Index, builtAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	return Save(filepath.Join(s.dir, name), idx, builtAt)
}

// Load restores the named snapshot.
func (s Store) Load(name string, model search.ModelID) (search.Index, time.Time, error) {
	return Load(filepath.Join(s.dir, name), model)
}

var _ search.SnapshotStore = Store{}
