package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kpath-ai/kpath/domain/search"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	model := search.NewModelID("test-model", 3)
	idx := NewFlat(model)

	svcPayload := search.NewServicePayload("flight-booker", "books flights",
		[]string{"travel"},
		[]search.CapabilityTag{search.NewCapabilityTag("booking", "reserve seats")},
	)
	toolPayload := search.NewToolPayload("book_flight", "reserves a seat", 1)

	require.NoError(t, idx.Add(search.NewEntry(1, []float32{1, 0, 0}, svcPayload)))
	require.NoError(t, idx.Add(search.NewEntry(2, []float32{0, 1, 0}, toolPayload)))

	base := filepath.Join(t.TempDir(), "services")
	builtAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Save(base, idx, builtAt))

	loaded, gotBuiltAt, err := Load(base, model)
	require.NoError(t, err)
	require.True(t, builtAt.Equal(gotBuiltAt))
	require.Equal(t, 2, loaded.Size())
	require.Equal(t, model, loaded.Model())

	got, ok := loaded.Get(1)
	require.True(t, ok)
	require.Equal(t, "flight-booker", got.Payload().Name())
	require.Equal(t, []string{"travel"}, got.Payload().Domains())
	caps := got.Payload().Capabilities()
	require.Len(t, caps, 1)
	require.Equal(t, "booking", caps[0].Name())

	got, ok = loaded.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(1), got.Payload().ParentID())

	// Identical ranking after reload.
	want := idx.Search([]float32{0.7, 0.3, 0}, 2)
	have := loaded.Search([]float32{0.7, 0.3, 0}, 2)
	require.Equal(t, len(want), len(have))
	for i := range want {
		require.Equal(t, want[i].ID(), have[i].ID())
		require.InDelta(t, want[i].Score(), have[i].Score(), 1e-6)
	}
}

func TestSnapshot_MissingFiles(t *testing.T) {
	base := filepath.Join(t.TempDir(), "absent")
	_, _, err := Load(base, search.NewModelID("m", 3))
	require.ErrorIs(t, err, ErrSnapshotMissing)
}

func TestSnapshot_ModelMismatch(t *testing.T) {
	model := search.NewModelID("model-a", 3)
	idx := NewFlat(model)
	require.NoError(t, idx.Add(search.NewEntry(1, []float32{1, 0, 0}, search.Payload{})))

	base := filepath.Join(t.TempDir(), "services")
	require.NoError(t, Save(base, idx, time.Now()))

	_, _, err := Load(base, search.NewModelID("model-b", 3))
	require.ErrorIs(t, err, ErrSnapshotModel)

	_, _, err = Load(base, search.NewModelID("model-a", 4))
	require.ErrorIs(t, err, ErrSnapshotModel)
}

func TestSnapshot_CorruptVectorFile(t *testing.T) {
	model := search.NewModelID("m", 3)
	idx := NewFlat(model)
	require.NoError(t, idx.Add(search.NewEntry(1, []float32{1, 0, 0}, search.Payload{})))

	base := filepath.Join(t.TempDir(), "services")
	require.NoError(t, Save(base, idx, time.Now()))

	// Truncate the vector file below its declared size.
	require.NoError(t, os.Truncate(base+".vec", headerSize+4))

	_, _, err := Load(base, model)
	require.ErrorIs(t, err, ErrSnapshotCorrupt)
}

func TestSnapshot_HeaderLayout(t *testing.T) {
	model := search.NewModelID("m", 2)
	idx := NewFlat(model)
	require.NoError(t, idx.Add(search.NewEntry(1, []float32{1, 0}, search.Payload{})))
	require.NoError(t, idx.Add(search.NewEntry(2, []float32{0, 1}, search.Payload{})))

	base := filepath.Join(t.TempDir(), "t")
	require.NoError(t, Save(base, idx, time.Now()))

	data, err := os.ReadFile(base + ".vec")
	require.NoError(t, err)
	require.Equal(t, headerSize+2*2*4, len(data))
	require.Equal(t, snapshotMagic, string(data[0:4]))
	require.Equal(t, byte(snapshotVersion), data[4])
	require.Equal(t, byte(dtypeFloat32), data[5])
	require.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[6:8]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[8:12]))
}

func TestStore_SaveAndLoadByName(t *testing.T) {
	model := search.NewModelID("m", 3)
	idx := NewFlat(model)
	require.NoError(t, idx.Add(search.NewEntry(1, []float32{1, 0, 0}, search.Payload{})))

	store := NewStore(filepath.Join(t.TempDir(), "indexes"))
	builtAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Save("services", idx, builtAt))

	loaded, gotBuiltAt, err := store.Load("services", model)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Size())
	require.True(t, builtAt.Equal(gotBuiltAt))
}
