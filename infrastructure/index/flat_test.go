package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

func testModel() search.ModelID {
	return search.NewModelID("test-model", 3)
}

func entry(id int64, vec []float32) search.Entry {
	return search.NewEntry(id, vec, search.NewServicePayload("svc", "", nil, nil))
}

func TestFlat_SearchOrdersByScore(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))
	require.NoError(t, idx.Add(entry(2, []float32{0, 1, 0})))
	require.NoError(t, idx.Add(entry(3, []float32{0.9, 0.1, 0})))

	hits := idx.Search([]float32{1, 0, 0}, 3)
	require.Len(t, hits, 3)
	require.Equal(t, int64(1), hits[0].ID())
	require.Equal(t, int64(3), hits[1].ID())
	require.Equal(t, int64(2), hits[2].ID())
}

func TestFlat_ScoreIsRescaledCosine(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))
	require.NoError(t, idx.Add(entry(2, []float32{-1, 0, 0})))

	hits := idx.Search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)

	// cos 1 -> 1.0, cos -1 -> 0.0 after the (cos+1)/2 rescale.
	require.InDelta(t, 1.0, hits[0].Score(), 1e-6)
	require.InDelta(t, 0.0, hits[1].Score(), 1e-6)
}

func TestFlat_TiesBreakTowardLowerID(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(9, []float32{0, 1, 0})))
	require.NoError(t, idx.Add(entry(2, []float32{0, 1, 0})))
	require.NoError(t, idx.Add(entry(5, []float32{0, 1, 0})))

	hits := idx.Search([]float32{0, 1, 0}, 3)
	require.Equal(t, []int64{2, 5, 9}, []int64{hits[0].ID(), hits[1].ID(), hits[2].ID()})
}

func TestFlat_SearchIsDeterministic(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{0.3, 0.7, 0.1})))
	require.NoError(t, idx.Add(entry(2, []float32{0.2, 0.8, 0.3})))
	require.NoError(t, idx.Add(entry(3, []float32{0.9, 0.1, 0.2})))

	first := idx.Search([]float32{0.5, 0.5, 0.5}, 3)
	for i := 0; i < 20; i++ {
		again := idx.Search([]float32{0.5, 0.5, 0.5}, 3)
		require.Equal(t, first, again)
	}
}

func TestFlat_AddRejectsDuplicateAndWrongDim(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))

	err := idx.Add(entry(1, []float32{0, 1, 0}))
	require.ErrorIs(t, err, search.ErrDuplicateID)

	err = idx.Add(entry(2, []float32{1, 0}))
	require.ErrorIs(t, err, search.ErrDimensionMismatch)
}

func TestFlat_RemoveTombstonesEntry(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))
	require.NoError(t, idx.Add(entry(2, []float32{0, 1, 0})))

	idx.Remove(1)
	idx.Remove(1) // idempotent
	idx.Remove(99)

	require.Equal(t, 1, idx.Size())
	hits := idx.Search([]float32{1, 0, 0}, 5)
	require.Len(t, hits, 1)
	require.Equal(t, int64(2), hits[0].ID())

	_, ok := idx.Get(1)
	require.False(t, ok)
}

func TestFlat_ReplaceOverwritesInPlace(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))

	require.NoError(t, idx.Replace(entry(1, []float32{0, 1, 0})))
	require.Equal(t, 1, idx.Size())

	hits := idx.Search([]float32{0, 1, 0}, 1)
	require.Len(t, hits, 1)
	require.InDelta(t, 1.0, hits[0].Score(), 1e-6)

	// Replace of an absent id inserts.
	require.NoError(t, idx.Replace(entry(2, []float32{0, 0, 1})))
	require.Equal(t, 2, idx.Size())
}

func TestFlat_GetReturnsNormalizedVector(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(1, []float32{3, 4, 0})))

	got, ok := idx.Get(1)
	require.True(t, ok)

	var norm float64
	for _, x := range got.Vector() {
		norm += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestFlat_EntriesOrderedByID(t *testing.T) {
	idx := NewFlat(testModel())
	require.NoError(t, idx.Add(entry(5, []float32{1, 0, 0})))
	require.NoError(t, idx.Add(entry(1, []float32{0, 1, 0})))
	require.NoError(t, idx.Add(entry(3, []float32{0, 0, 1})))

	entries := idx.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, int64(1), entries[0].ID())
	require.Equal(t, int64(3), entries[1].ID())
	require.Equal(t, int64(5), entries[2].ID())
}

func TestFlat_SnapshotReadDuringMutation(t *testing.T) {
	idx := NewFlat(testModel())
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, idx.Add(entry(i, []float32{float32(i), 1, 0})))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 10; i++ {
			idx.Remove(i)
			require.NoError(t, idx.Replace(entry(i, []float32{1, float32(i), 0})))
		}
	}()

	// Readers must always observe a consistent frame: no panics, no
	// tombstoned ids surfacing.
	for i := 0; i < 100; i++ {
		for _, hit := range idx.Search([]float32{1, 1, 0}, 10) {
			require.Positive(t, hit.ID())
		}
	}
	<-done
}

func TestFlat_SearchEmptyAndBadInputs(t *testing.T) {
	idx := NewFlat(testModel())
	require.Nil(t, idx.Search([]float32{1, 0, 0}, 5))

	require.NoError(t, idx.Add(entry(1, []float32{1, 0, 0})))
	require.Nil(t, idx.Search([]float32{1, 0, 0}, 0))
	require.Nil(t, idx.Search([]float32{1, 0}, 5))
}
