package search

import "time"

// SnapshotStore persists index snapshots and restores them at startup.
// Implementations must write atomically: a concurrent reader sees either the
// previous snapshot or the new one, never a mix.
type SnapshotStore interface {
	// Save persists the index under the given snapshot name.
	Save(name string, idx Index, builtAt time.Time) error

	// Load restores the named snapshot, verifying that its persisted model
	// identifier matches model. Any error means the snapshot is unusable
	// and the index must be rebuilt from the registry.
	Load(name string, model ModelID) (Index, time.Time, error)
}
