package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/ivf"
	"github.com/vectral/vectral/internal/logging"
	"github.com/vectral/vectral/internal/persistence"
	"github.com/vectral/vectral/internal/search"
	"github.com/vectral/vectral/pkg/fs"
)

// Config configures a DB: its durable write path, resource limits, and
// search tuning.
type Config struct {
	Persistence persistence.Config
	Resource    ResourcePolicy
	Thresholds  search.Thresholds
	// IVFCacheCooldown is the minimum spacing between rebuild attempts for
	// the same collection after a cache miss. Zero uses ivf.DefaultCooldown.
	IVFCacheCooldown time.Duration
}

// CollectionStats is a point-in-time view of one collection, for Stats and
// the console/CLI layer.
type CollectionStats struct {
	Name         string
	Dimension    int
	StrictFinite bool
	Len          int
}

// Stats is a point-in-time snapshot of the whole registry.
type Stats struct {
	Collections         []CollectionStats
	MemoryUsedBytes     uint64
	StorageAvailable    bool
	InFlightCheckpoints int64
}

// DB is the service facade: a collection registry, an IVF cache, a search
// engine, and a persistence store wired together behind one in-memory API
// surface.
type DB struct {
	policy  ResourcePolicy
	logger  zerolog.Logger
	memory  memoryMeter
	permits *writePermits

	registryMu  sync.RWMutex
	collections map[string]*collection.Collection

	ivfCache *ivf.Cache
	engine   *search.Engine
	store    *persistence.Store
}

// Open recovers durable state (if any) and returns a ready DB. Callers must
// Close the returned DB to release its WAL handle.
func Open(fsys fs.FS, cfg Config) (*DB, error) {
	store, err := persistence.NewStore(fsys, cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("vectordb: open store: %w", err)
	}

	db := &DB{
		policy:      cfg.Resource,
		logger:      logging.WithComponent("registry"),
		permits:     newWritePermits(),
		collections: make(map[string]*collection.Collection),
		ivfCache:    ivf.NewCache(cfg.IVFCacheCooldown),
		store:       store,
	}
	db.engine = search.NewEngine(db.ivfCache, cfg.Thresholds)
	db.store.SetStateProvider(db.snapshotLive)

	snap, err := db.store.Recover(db.applyRecord)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("vectordb: recover: %w", err)
	}
	if err := db.applySnapshot(snap); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("vectordb: apply snapshot: %w", err)
	}

	return db, nil
}

// Close releases the underlying WAL handle.
func (db *DB) Close() error {
	return db.store.Close()
}

// snapshotLive builds a persistence.Snapshot from the live registry, for a
// synchronous checkpoint's compaction step.
func (db *DB) snapshotLive() persistence.Snapshot {
	db.registryMu.RLock()
	defer db.registryMu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := persistence.Snapshot{Collections: make([]persistence.SnapshotCollection, 0, len(names))}
	for _, name := range names {
		coll := db.collections[name]
		snap.Collections = append(snap.Collections, persistence.SnapshotCollection{
			Name:         name,
			Dimension:    coll.Dimension(),
			StrictFinite: coll.StrictFinite(),
			Points:       persistence.PointsFromLive(coll.Points()),
		})
	}
	return snap
}

// applySnapshot loads a snapshot's collections into the registry. Called
// once at startup, before any write permit contention is possible.
func (db *DB) applySnapshot(snap persistence.Snapshot) error {
	for _, sc := range snap.Collections {
		cfg, err := collection.NewConfig(sc.Dimension, sc.StrictFinite)
		if err != nil {
			return err
		}
		coll, err := collection.New(sc.Name, cfg)
		if err != nil {
			return err
		}
		for _, p := range sc.Points {
			coll.UpsertUnchecked(p.ID, p.Values, p.Payload)
			db.memory.adjust(int64(len(p.Values)) * bytesPerComponent)
		}
		db.collections[sc.Name] = coll
	}
	return nil
}

// applyRecord is the Store.Recover callback: it mutates the registry
// directly with the *_unchecked paths, since records replayed from a
// validated WAL don't need re-validation, and applies the
// idempotent-replay exceptions (duplicate identical create_collection,
// delete_point against a missing id).
func (db *DB) applyRecord(rec persistence.Record) error {
	switch rec.Type {
	case persistence.RecordCreateCollection:
		if existing, ok := db.collections[rec.Name]; ok {
			if existing.Dimension() == rec.Dimension && existing.StrictFinite() == rec.StrictFinite {
				return nil
			}
			return fmt.Errorf("%w: %q replayed with a conflicting config", persistence.ErrWALReplay, rec.Name)
		}
		cfg, err := collection.NewConfig(rec.Dimension, rec.StrictFinite)
		if err != nil {
			return err
		}
		coll, err := collection.New(rec.Name, cfg)
		if err != nil {
			return err
		}
		db.collections[rec.Name] = coll
		return nil

	case persistence.RecordDeleteCollection:
		delete(db.collections, rec.Name)
		return nil

	case persistence.RecordUpsertPoint:
		coll, ok := db.collections[rec.Collection]
		if !ok {
			return fmt.Errorf("%w: upsert_point against unknown collection %q", persistence.ErrWALReplay, rec.Collection)
		}
		_, _, hadPrev := coll.GetRecord(rec.ID)
		coll.UpsertUnchecked(rec.ID, rec.Values, rec.Payload)
		if !hadPrev {
			db.memory.adjust(int64(len(rec.Values)) * bytesPerComponent)
		}
		return nil

	case persistence.RecordDeletePoint:
		coll, ok := db.collections[rec.Collection]
		if !ok {
			return fmt.Errorf("%w: delete_point against unknown collection %q", persistence.ErrWALReplay, rec.Collection)
		}
		if values, _, existed := coll.RemoveRecord(rec.ID); existed {
			db.memory.adjust(-int64(len(values)) * bytesPerComponent)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown record type %q", persistence.ErrWALReplay, rec.Type)
	}
}

func (db *DB) lookup(name string) (*collection.Collection, error) {
	db.registryMu.RLock()
	defer db.registryMu.RUnlock()
	coll, ok := db.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return coll, nil
}

// CreateCollection creates an empty collection. strictFinite nil uses the
// registry's default.
func (db *DB) CreateCollection(name string, dimension int, strictFinite *bool) (CollectionStats, error) {
	if db.policy.MaxDimension > 0 && dimension > db.policy.MaxDimension {
		return CollectionStats{}, wrap(ErrDimensionTooLarge)
	}
	sf := db.policy.StrictFiniteDefault
	if strictFinite != nil {
		sf = *strictFinite
	}
	cfg, err := collection.NewConfig(dimension, sf)
	if err != nil {
		return CollectionStats{}, wrap(err)
	}

	permit := db.permits.acquire(name)
	defer db.permits.release(name, permit)

	db.registryMu.RLock()
	_, exists := db.collections[name]
	db.registryMu.RUnlock()
	if exists {
		return CollectionStats{}, wrap(ErrCollectionExists)
	}

	coll, err := collection.New(name, cfg)
	if err != nil {
		return CollectionStats{}, wrap(err)
	}

	db.registryMu.Lock()
	db.collections[name] = coll
	db.registryMu.Unlock()

	if err := db.store.Append(persistence.NewCreateCollection(name, dimension, sf)); err != nil {
		db.registryMu.Lock()
		delete(db.collections, name)
		db.registryMu.Unlock()
		return CollectionStats{}, wrap(fmt.Errorf("vectordb: persist create_collection: %w", err))
	}

	return CollectionStats{Name: name, Dimension: dimension, StrictFinite: sf, Len: 0}, nil
}

// DeleteCollection removes name and every one of its points, rolling back
// to the prior state if the delete fails to persist.
func (db *DB) DeleteCollection(name string) (bool, error) {
	permit := db.permits.acquire(name)
	defer db.permits.release(name, permit)

	db.registryMu.Lock()
	coll, ok := db.collections[name]
	if !ok {
		db.registryMu.Unlock()
		return false, nil
	}
	delete(db.collections, name)
	db.registryMu.Unlock()

	db.ivfCache.Invalidate(name)
	freed := memoryFootprint(coll)

	if err := db.store.Append(persistence.NewDeleteCollection(name)); err != nil {
		db.registryMu.Lock()
		db.collections[name] = coll
		db.registryMu.Unlock()
		return false, wrap(fmt.Errorf("vectordb: persist delete_collection: %w", err))
	}

	db.memory.adjust(-freed)
	return true, nil
}

func memoryFootprint(coll *collection.Collection) int64 {
	return int64(coll.Len()) * int64(coll.Dimension()) * bytesPerComponent
}

// UpsertPoint validates and inserts or overwrites id, persisting the
// change before returning. On a persistence failure the in-memory mutation
// is rolled back under the same write permit.
func (db *DB) UpsertPoint(collName string, id uint64, values []float32, payload collection.Payload) (bool, error) {
	permit := db.permits.acquire(collName)
	defer db.permits.release(collName, permit)

	coll, err := db.lookup(collName)
	if err != nil {
		return false, wrap(err)
	}

	prevValues, prevPayload, hadPrev := coll.GetRecord(id)
	if !hadPrev {
		if db.policy.MaxPointsPerCollection > 0 && coll.Len() >= db.policy.MaxPointsPerCollection {
			return false, wrap(ErrMaxPointsExceeded)
		}
		needed := int64(len(values)) * bytesPerComponent
		if !db.memory.tryReserve(db.policy.MemoryBudgetBytes, needed) {
			return false, wrap(ErrMemoryBudgetExceeded)
		}
	}

	created, err := coll.Upsert(id, values, payload)
	if err != nil {
		if !hadPrev {
			db.memory.adjust(-int64(len(values)) * bytesPerComponent)
		}
		return false, wrap(err)
	}
	db.ivfCache.Invalidate(collName)

	if err := db.store.Append(persistence.NewUpsertPoint(collName, id, values, payload)); err != nil {
		if created {
			coll.Remove(id)
			db.memory.adjust(-int64(len(values)) * bytesPerComponent)
		} else {
			coll.UpsertUnchecked(id, prevValues, prevPayload)
		}
		db.ivfCache.Invalidate(collName)
		return false, wrap(fmt.Errorf("vectordb: persist upsert_point: %w", err))
	}

	return created, nil
}

// DeletePoint removes id from collName, rolling back the removal if the
// delete fails to persist.
func (db *DB) DeletePoint(collName string, id uint64) (bool, error) {
	permit := db.permits.acquire(collName)
	defer db.permits.release(collName, permit)

	coll, err := db.lookup(collName)
	if err != nil {
		return false, wrap(err)
	}

	values, payload, existed := coll.RemoveRecord(id)
	if !existed {
		return false, nil
	}
	db.ivfCache.Invalidate(collName)
	db.memory.adjust(-int64(len(values)) * bytesPerComponent)

	if err := db.store.Append(persistence.NewDeletePoint(collName, id)); err != nil {
		coll.UpsertUnchecked(id, values, payload)
		db.memory.adjust(int64(len(values)) * bytesPerComponent)
		db.ivfCache.Invalidate(collName)
		return false, wrap(fmt.Errorf("vectordb: persist delete_point: %w", err))
	}

	return true, nil
}

// GetPoint returns id's vector and payload.
func (db *DB) GetPoint(collName string, id uint64) ([]float32, collection.Payload, error) {
	coll, err := db.lookup(collName)
	if err != nil {
		return nil, nil, wrap(err)
	}
	values, payload, ok := coll.GetRecord(id)
	if !ok {
		return nil, nil, wrap(ErrPointNotFound)
	}
	return values, payload, nil
}

// ListIDsPage returns up to limit ids strictly greater than cursor (or from
// the start when cursor is nil), plus the next cursor iff more ids remain.
func (db *DB) ListIDsPage(collName string, cursor *uint64, limit int) ([]uint64, *uint64, error) {
	coll, err := db.lookup(collName)
	if err != nil {
		return nil, nil, wrap(err)
	}
	ids, next := coll.IDsPageAfter(cursor, limit)
	return ids, next, nil
}

// ListIDsOffset returns up to limit ids starting at offset, in ascending
// order. The cursor form is preferred for iteration that must not skip or
// repeat ids across concurrent mutations; the offset form serves one-shot
// inspection.
func (db *DB) ListIDsOffset(collName string, offset, limit int) ([]uint64, error) {
	coll, err := db.lookup(collName)
	if err != nil {
		return nil, wrap(err)
	}
	return coll.IDsPage(offset, limit), nil
}

// Search clamps k to the resource policy's max_topk_limit and runs req
// against collName.
func (db *DB) Search(ctx context.Context, collName string, req search.Request) (search.Result, error) {
	coll, err := db.lookup(collName)
	if err != nil {
		return search.Result{}, wrap(err)
	}
	if db.policy.MaxTopKLimit > 0 && req.K > db.policy.MaxTopKLimit {
		req.K = db.policy.MaxTopKLimit
	}
	result, err := db.engine.Search(ctx, collName, coll, req)
	if err != nil {
		return search.Result{}, wrap(err)
	}
	return result, nil
}

// SearchBatch runs req against every query in queries.
func (db *DB) SearchBatch(ctx context.Context, collName string, queries [][]float32, req search.BatchRequest) ([]search.Result, error) {
	coll, err := db.lookup(collName)
	if err != nil {
		return nil, wrap(err)
	}
	if db.policy.MaxTopKLimit > 0 && req.K > db.policy.MaxTopKLimit {
		req.K = db.policy.MaxTopKLimit
	}
	results, err := db.engine.SearchBatch(ctx, collName, coll, queries, req)
	if err != nil {
		return nil, wrap(err)
	}
	return results, nil
}

// Stats returns a point-in-time snapshot of the registry and its storage
// health.
func (db *DB) Stats() Stats {
	db.registryMu.RLock()
	collections := make([]CollectionStats, 0, len(db.collections))
	for name, coll := range db.collections {
		collections = append(collections, CollectionStats{
			Name:         name,
			Dimension:    coll.Dimension(),
			StrictFinite: coll.StrictFinite(),
			Len:          coll.Len(),
		})
	}
	db.registryMu.RUnlock()

	return Stats{
		Collections:         collections,
		MemoryUsedBytes:     db.memory.Used(),
		StorageAvailable:    db.store.StorageAvailable(),
		InFlightCheckpoints: db.store.InFlightCheckpoints(),
	}
}
