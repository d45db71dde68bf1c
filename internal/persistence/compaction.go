package persistence

// snapshotBuilder reconstructs a Snapshot by replaying records on top of a
// base snapshot, entirely from what's on disk — no live collection state.
// It backs the async checkpoint path's "reload from disk, recompact,
// replace" choreography, kept deliberately separate from
// the in-memory registry so an async checkpoint scheduled out of order can't
// observe a state newer than what it's meant to be compacting.
type snapshotBuilder struct {
	order       []string
	collections map[string]*SnapshotCollection
	points      map[string]map[uint64]int
}

func newSnapshotBuilder(base Snapshot) *snapshotBuilder {
	b := &snapshotBuilder{
		collections: make(map[string]*SnapshotCollection, len(base.Collections)),
		points:      make(map[string]map[uint64]int, len(base.Collections)),
	}
	for i := range base.Collections {
		sc := base.Collections[i]
		b.order = append(b.order, sc.Name)
		b.collections[sc.Name] = &sc
		idx := make(map[uint64]int, len(sc.Points))
		for j, p := range sc.Points {
			idx[p.ID] = j
		}
		b.points[sc.Name] = idx
	}
	return b
}

// apply has the shape of a WAL replay applier; it tolerates the same
// idempotent/missing-referent cases the service facade already validated
// when the record was first written, since by the time a record
// reaches compaction it has already passed through a real apply once.
func (b *snapshotBuilder) apply(rec Record) error {
	switch rec.Type {
	case RecordCreateCollection:
		if _, exists := b.collections[rec.Name]; exists {
			return nil
		}
		b.collections[rec.Name] = &SnapshotCollection{Name: rec.Name, Dimension: rec.Dimension, StrictFinite: rec.StrictFinite}
		b.order = append(b.order, rec.Name)
		b.points[rec.Name] = make(map[uint64]int)

	case RecordDeleteCollection:
		delete(b.collections, rec.Name)
		delete(b.points, rec.Name)
		for i, name := range b.order {
			if name == rec.Name {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}

	case RecordUpsertPoint:
		sc, ok := b.collections[rec.Collection]
		if !ok {
			return nil
		}
		idx := b.points[rec.Collection]
		point := SnapshotPoint{ID: rec.ID, Values: rec.Values, Payload: rec.Payload}
		if i, exists := idx[rec.ID]; exists {
			sc.Points[i] = point
		} else {
			idx[rec.ID] = len(sc.Points)
			sc.Points = append(sc.Points, point)
		}

	case RecordDeletePoint:
		sc, ok := b.collections[rec.Collection]
		if !ok {
			return nil
		}
		idx := b.points[rec.Collection]
		i, exists := idx[rec.ID]
		if !exists {
			return nil
		}
		last := len(sc.Points) - 1
		moved := sc.Points[last]
		sc.Points[i] = moved
		sc.Points = sc.Points[:last]
		idx[moved.ID] = i
		delete(idx, rec.ID)
	}
	return nil
}

func (b *snapshotBuilder) snapshot() Snapshot {
	out := Snapshot{Collections: make([]SnapshotCollection, 0, len(b.order))}
	for _, name := range b.order {
		out.Collections = append(out.Collections, *b.collections[name])
	}
	return out
}
