// Package index provides the in-memory flat vector index and its on-disk
// snapshot persistence. Flat exact search is sufficient for corpora up to
// low-tens-of-thousands of entries; an ANN upgrade would be a drop-in
// capacity change behind the same contract.
package index

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kpath-ai/kpath/domain/search"
)

// Flat is a flat cosine-similarity vector index.
//
// Readers never lock: Search and Entries load the current frame pointer and
// operate on it for the duration of the call. Writers serialize on a mutex,
// clone the frame, apply the mutation, and atomically swap the pointer.
type Flat struct {
	model search.ModelID
	frame atomic.Pointer[frame]
	mu    sync.Mutex
}

// frame is one immutable index generation. Rows removed since the last full
// build are tombstoned (id -1) and skipped; a rebuild produces a compacted
// fresh index.
type frame struct {
	ids      []int64
	vectors  [][]float32
	payloads []search.Payload
	rows     map[int64]int
	live     int
}

// NewFlat creates an empty index bound to the given model identity.
// All vectors must have model.Dim() elements.
func NewFlat(model search.ModelID) *Flat {
	f := &Flat{model: model}
	f.frame.Store(&frame{rows: map[int64]int{}})
	return f
}

// Add inserts an entry. Fails with search.ErrDuplicateID if the id is
// already present and search.ErrDimensionMismatch on a wrong-length vector.
func (f *Flat) Add(entry search.Entry) error {
	if len(entry.Vector()) != f.model.Dim() {
		return search.ErrDimensionMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.frame.Load()
	if _, ok := cur.rows[entry.ID()]; ok {
		return search.ErrDuplicateID
	}
	next := cur.clone()
	next.append(entry)
	f.frame.Store(next)
	return nil
}

// Remove deletes an entry by id. Idempotent; absent ids succeed silently.
func (f *Flat) Remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.frame.Load()
	row, ok := cur.rows[id]
	if !ok {
		return
	}
	next := cur.clone()
	next.ids[row] = -1
	next.payloads[row] = search.Payload{}
	delete(next.rows, id)
	next.live--
	f.frame.Store(next)
}

// Replace inserts or overwrites an entry. Atomic from a reader's
// perspective: a concurrent Search sees either the old or the new entry.
func (f *Flat) Replace(entry search.Entry) error {
	if len(entry.Vector()) != f.model.Dim() {
		return search.ErrDimensionMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.frame.Load()
	next := cur.clone()
	if row, ok := next.rows[entry.ID()]; ok {
		vec := normalized(entry.Vector())
		next.vectors[row] = vec
		next.payloads[row] = entry.Payload()
	} else {
		next.append(entry)
	}
	f.frame.Store(next)
	return nil
}

// Search returns up to k entries ordered by descending score. The score is
// cosine similarity linearly rescaled from [-1,1] to [0,1]; ties break
// toward the lower external id for determinism.
func (f *Flat) Search(query []float32, k int) []search.Hit {
	if k <= 0 {
		return nil
	}
	fr := f.frame.Load()
	if fr.live == 0 || len(query) != f.model.Dim() {
		return nil
	}

	q := normalized(query)
	hits := make([]search.Hit, 0, fr.live)
	for row, id := range fr.ids {
		if id < 0 {
			continue
		}
		cos := dot(q, fr.vectors[row])
		score := (float64(cos) + 1) / 2
		hits = append(hits, search.NewHit(id, score, fr.payloads[row]))
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score() != hits[j].Score() {
			return hits[i].Score() > hits[j].Score()
		}
		return hits[i].ID() < hits[j].ID()
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Get returns the live entry with the given id, if present. The returned
// vector is the stored (normalized) one and must not be mutated.
func (f *Flat) Get(id int64) (search.Entry, bool) {
	fr := f.frame.Load()
	row, ok := fr.rows[id]
	if !ok {
		return search.Entry{}, false
	}
	return search.NewEntry(id, fr.vectors[row], fr.payloads[row]), true
}

// Entries returns all live entries ordered by external id. Vectors are the
// stored (normalized) ones and must not be mutated.
func (f *Flat) Entries() []search.Entry {
	fr := f.frame.Load()
	entries := make([]search.Entry, 0, fr.live)
	for row, id := range fr.ids {
		if id < 0 {
			continue
		}
		entries = append(entries, search.NewEntry(id, fr.vectors[row], fr.payloads[row]))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID() < entries[j].ID()
	})
	return entries
}

// Size returns the number of live entries.
func (f *Flat) Size() int {
	return f.frame.Load().live
}

// Dim returns the fixed vector dimension.
func (f *Flat) Dim() int { return f.model.Dim() }

// Model returns the embedding model identity.
func (f *Flat) Model() search.ModelID { return f.model }

func (fr *frame) clone() *frame {
	next := &frame{
		ids:      append([]int64{}, fr.ids...),
		vectors:  append([][]float32{}, fr.vectors...),
		payloads: append([]search.Payload{}, fr.payloads...),
		rows:     make(map[int64]int, len(fr.rows)),
		live:     fr.live,
	}
	for id, row := range fr.rows {
		next.rows[id] = row
	}
	return next
}

func (fr *frame) append(entry search.Entry) {
	fr.ids = append(fr.ids, entry.ID())
	fr.vectors = append(fr.vectors, normalized(entry.Vector()))
	fr.payloads = append(fr.payloads, entry.Payload())
	fr.rows[entry.ID()] = len(fr.ids) - 1
	fr.live++
}

// normalized returns an L2-normalized copy of v. Zero vectors are returned
// as-is.
func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
