package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/pkg/fs"
)

// SnapshotPoint is one point in a SnapshotCollection.
type SnapshotPoint struct {
	ID      uint64             `json:"id"`
	Values  []float32          `json:"values"`
	Payload collection.Payload `json:"payload,omitempty"`
}

// SnapshotCollection is one collection's full state as captured on disk:
// its config and every live point, in whatever order the writer produced
// them (readers don't depend on point order).
type SnapshotCollection struct {
	Name         string          `json:"name"`
	Dimension    int             `json:"dimension"`
	StrictFinite bool            `json:"strict_finite"`
	Points       []SnapshotPoint `json:"points"`
}

// Snapshot is the ordered mapping name -> collection state. Order in
// Collections is the order collections were created in; it's preserved so
// that re-marshaling a loaded snapshot before the next write is stable.
type Snapshot struct {
	Collections []SnapshotCollection `json:"collections"`
}

// LoadSnapshot reads and decodes the snapshot at path. A missing file is not
// an error: readers tolerate an absent snapshot and start empty.
func LoadSnapshot(fsys fs.FS, path string) (Snapshot, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("persistence: stat snapshot %q: %w", path, err)
	}
	if !exists {
		return Snapshot{}, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("persistence: read snapshot %q: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotLoad, err)
	}
	return snap, nil
}

// WriteSnapshot atomically replaces the snapshot file at path with snap,
// using writer's temp-file + fsync + rename + dir-fsync sequence.
func WriteSnapshot(writer *fs.AtomicWriter, path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	if err := writer.WriteWithDefaults(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("persistence: write snapshot %q: %w", path, err)
	}
	return nil
}

// PointsFromLive converts a collection.PointSnapshot slice (the in-memory
// registry's own copy-out view, from Collection.Points) into the wire shape,
// for callers building a Snapshot from live state for a synchronous
// checkpoint.
func PointsFromLive(points []collection.PointSnapshot) []SnapshotPoint {
	out := make([]SnapshotPoint, len(points))
	for i, p := range points {
		out[i] = SnapshotPoint{ID: p.ID, Values: p.Values, Payload: p.Payload}
	}
	return out
}
