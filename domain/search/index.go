package search

import "errors"

// Index errors.
var (
	// ErrDuplicateID indicates Add was called with an id already present.
	ErrDuplicateID = errors.New("index: duplicate external id")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
)

// Entry is one indexed vector with its external id and render payload.
type Entry struct {
	id      int64
	vector  []float32
	payload Payload
}

// NewEntry creates an Entry. The vector is not copied; callers must not
// mutate it after handing it to an index.
func NewEntry(id int64, vector []float32, payload Payload) Entry {
	return Entry{id: id, vector: vector, payload: payload}
}

// ID returns the external id.
func (e Entry) ID() int64 { return e.id }

// Vector returns the embedding vector.
func (e Entry) Vector() []float32 { return e.vector }

// Payload returns the render payload.
func (e Entry) Payload() Payload { return e.payload }

// Hit is one nearest-neighbor search result.
type Hit struct {
	id      int64
	score   float64
	payload Payload
}

// NewHit creates a Hit.
func NewHit(id int64, score float64, payload Payload) Hit {
	return Hit{id: id, score: score, payload: payload}
}

// ID returns the external id.
func (h Hit) ID() int64 { return h.id }

// Score returns the cosine similarity rescaled to [0,1].
func (h Hit) Score() float64 { return h.score }

// Payload returns the render payload.
func (h Hit) Payload() Payload { return h.payload }

// Index is an in-memory dense vector store. Mutations follow a
// read-copy-update discipline: readers always observe a consistent snapshot,
// and a Search in flight is unaffected by concurrent writes.
type Index interface {
	// Add inserts an entry. Fails with ErrDuplicateID if the id is present.
	Add(entry Entry) error

	// Remove deletes an entry by id. Idempotent.
	Remove(id int64)

	// Replace inserts or overwrites an entry atomically.
	Replace(entry Entry) error

	// Search returns up to k entries ordered by descending score, ties
	// broken by lower external id.
	Search(query []float32, k int) []Hit

	// Get returns the live entry with the given id, if present.
	Get(id int64) (Entry, bool)

	// Entries returns all live entries, ordered by external id.
	Entries() []Entry

	// Size returns the number of live entries.
	Size() int

	// Dim returns the fixed vector dimension.
	Dim() int

	// Model returns the embedding model identity the index was built with.
	Model() ModelID
}
