package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/kpath-ai/kpath/domain/search"
)

// Snapshot file format constants. A snapshot is two sibling files:
// <base>.vec holds the raw vectors behind a fixed 32-byte header, and
// <base>.meta.json holds the model identity, id map, and payload map.
// The meta file is renamed last and acts as the commit record.
const (
	snapshotMagic   = "KPVX"
	snapshotVersion = 1
	dtypeFloat32    = 1
	headerSize      = 32
)

// Snapshot load errors.
var (
	// ErrSnapshotMissing indicates no usable snapshot exists at the path.
	ErrSnapshotMissing = errors.New("index: snapshot missing")

	// ErrSnapshotModel indicates the persisted model identifier does not
	// match the current embedding backend. The caller should discard the
	// snapshot and schedule a rebuild.
	ErrSnapshotModel = errors.New("index: snapshot model mismatch")

	// ErrSnapshotCorrupt indicates the snapshot failed structural checks.
	ErrSnapshotCorrupt = errors.New("index: snapshot corrupt")
)

type metaFile struct {
	Model   string      `json:"model"`
	Dim     int         `json:"dim"`
	Count   int         `json:"count"`
	BuiltAt time.Time   `json:"built_at"`
	Entries []metaEntry `json:"entries"`
}

type metaEntry struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	ParentID     int64            `json:"parent_id,omitempty"`
	Domains      []string         `json:"domains,omitempty"`
	Capabilities []metaCapability `json:"capabilities,omitempty"`
}

type metaCapability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Save atomically persists the index to <base>.vec and <base>.meta.json.
// Both files are written to *.tmp siblings, fsynced, then renamed; a reader
// loading concurrently sees either the old snapshot or the new one.
func Save(base string, idx search.Index, builtAt time.Time) error {
	entries := idx.Entries()

	if err := writeVectors(base+".vec", idx.Dim(), entries); err != nil {
		return err
	}
	return writeMeta(base+".meta.json", idx.Model(), idx.Dim(), entries, builtAt)
}

// Load restores a Flat index from the snapshot at base, verifying that the
// persisted model identifier matches model. Returns ErrSnapshotMissing when
// no snapshot exists, ErrSnapshotModel on an identifier mismatch, and
// ErrSnapshotCorrupt when the files fail structural checks.
func Load(base string, model search.ModelID) (*Flat, time.Time, error) {
	meta, err := readMeta(base + ".meta.json")
	if err != nil {
		return nil, time.Time{}, err
	}
	if meta.Model != model.String() || meta.Dim != model.Dim() {
		return nil, time.Time{}, fmt.Errorf("%w: snapshot %s/%d, backend %s",
			ErrSnapshotModel, meta.Model, meta.Dim, model)
	}

	vectors, err := readVectors(base+".vec", meta.Dim, meta.Count)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(vectors) != len(meta.Entries) {
		return nil, time.Time{}, fmt.Errorf("%w: %d vectors for %d entries",
			ErrSnapshotCorrupt, len(vectors), len(meta.Entries))
	}

	flat := NewFlat(model)
	for i, me := range meta.Entries {
		payload := payloadFromMeta(me)
		if err := flat.Add(search.NewEntry(me.ID, vectors[i], payload)); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
		}
	}
	return flat, meta.BuiltAt, nil
}

func writeVectors(path string, dim int, entries []search.Entry) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	w := bufio.NewWriter(file)

	header := make([]byte, headerSize)
	copy(header[0:4], snapshotMagic)
	header[4] = snapshotVersion
	header[5] = dtypeFloat32
	binary.LittleEndian.PutUint16(header[6:8], uint16(dim))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	if _, err := w.Write(header); err != nil {
		_ = file.Close()
		return err
	}

	buf := make([]byte, 4)
	for _, entry := range entries {
		for _, x := range entry.Vector() {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				_ = file.Close()
				return err
			}
		}
	}

	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readVectors(path string, dim, count int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotMissing
		}
		return nil, err
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrSnapshotCorrupt)
	}
	if string(data[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrSnapshotCorrupt)
	}
	if data[4] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, data[4])
	}
	if data[5] != dtypeFloat32 {
		return nil, fmt.Errorf("%w: unsupported dtype %d", ErrSnapshotCorrupt, data[5])
	}

	gotDim := int(binary.LittleEndian.Uint16(data[6:8]))
	gotCount := int(binary.LittleEndian.Uint32(data[8:12]))
	if gotDim != dim || gotCount != count {
		return nil, fmt.Errorf("%w: header %dx%d, meta %dx%d",
			ErrSnapshotCorrupt, gotCount, gotDim, count, dim)
	}

	want := headerSize + count*dim*4
	if len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrSnapshotCorrupt, len(data), want)
	}

	vectors := make([][]float32, count)
	off := headerSize
	for i := range vectors {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func writeMeta(path string, model search.ModelID, dim int, entries []search.Entry, builtAt time.Time) error {
	meta := metaFile{
		Model:   model.String(),
		Dim:     dim,
		Count:   len(entries),
		BuiltAt: builtAt.UTC(),
		Entries: make([]metaEntry, len(entries)),
	}
	for i, entry := range entries {
		p := entry.Payload()
		me := metaEntry{
			ID:          entry.ID(),
			Name:        p.Name(),
			Description: p.Description(),
			ParentID:    p.ParentID(),
			Domains:     p.Domains(),
		}
		for _, cap := range p.Capabilities() {
			me.Capabilities = append(me.Capabilities, metaCapability{
				Name:        cap.Name(),
				Description: cap.Description(),
			})
		}
		meta.Entries[i] = me
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMeta(path string) (metaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return metaFile{}, ErrSnapshotMissing
		}
		return metaFile{}, err
	}
	var meta metaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaFile{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return meta, nil
}

func payloadFromMeta(me metaEntry) search.Payload {
	if me.ParentID != 0 {
		return search.NewToolPayload(me.Name, me.Description, me.ParentID)
	}
	caps := make([]search.CapabilityTag, 0, len(me.Capabilities))
	for _, c := range me.Capabilities {
		caps = append(caps, search.NewCapabilityTag(c.Name, c.Description))
	}
	return search.NewServicePayload(me.Name, me.Description, me.Domains, caps)
}
