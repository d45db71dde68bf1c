package persistence

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vectral/vectral/internal/logging"
	"github.com/vectral/vectral/pkg/fs"
)

// Config configures a Store's on-disk layout, sync cadence, checkpoint
// thresholds, and group-commit coalescing.
type Config struct {
	SnapshotPath string
	WALPath      string

	Sync        SyncPolicy
	GroupCommit GroupCommitPolicy

	// CheckpointInterval is the number of successful writes between
	// scheduled checkpoints. Defaults to 32.
	CheckpointInterval int
	// CheckpointCompactAfter is the incremental segment count at or above
	// which a checkpoint also compacts into a fresh snapshot. Defaults to 64.
	CheckpointCompactAfter int
	// AsyncCheckpoints schedules checkpoints off the write path, guarded by
	// a single-flight group instead of running inline with the triggering
	// write.
	AsyncCheckpoints bool
}

func (c Config) incrementalsDir() string {
	return c.SnapshotPath + ".incrementals"
}

func (c Config) withDefaults() Config {
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 32
	}
	if c.CheckpointCompactAfter <= 0 {
		c.CheckpointCompactAfter = 64
	}
	if c.GroupCommit.MaxBatch <= 0 {
		c.GroupCommit.MaxBatch = 16
	}
	return c
}

// StateProvider returns the registry's current durable state, for a
// synchronous checkpoint's compaction step. Set via Store.SetStateProvider
// once the owning vectordb registry exists (Store itself has no reference
// to any collection).
type StateProvider func() Snapshot

// Store owns the durable write path: the WAL, its sync
// policy, group commit, checkpoint scheduling, and the snapshot/incremental-
// segment on-disk layout. It holds no reference to any collection; callers
// pass fully-formed Records and, for checkpointing, a StateProvider.
type Store struct {
	fsys         fs.FS
	atomicWriter *fs.AtomicWriter
	cfg          Config
	logger       zerolog.Logger

	stateProvider StateProvider

	// ioMu serializes all disk I/O against this store's WAL and segments:
	// one writer at a time to the WAL, one rename, one snapshot write.
	ioMu                  sync.Mutex
	wal                   *WAL
	writesSinceCheckpoint int
	nextSegmentSeq        uint64
	storageAvailable      atomic.Bool

	sync  *syncState
	group *groupCommitter

	checkpointSF       singleflight.Group
	checkpointInFlight atomic.Int64
}

// NewStore opens or creates the WAL and discovers the next segment sequence
// number from whatever incrementals already exist on disk.
func NewStore(fsys fs.FS, cfg Config) (*Store, error) {
	if cfg.SnapshotPath == "" || cfg.WALPath == "" {
		return nil, fmt.Errorf("persistence: config requires SnapshotPath and WALPath")
	}
	cfg = cfg.withDefaults()

	if err := fsys.MkdirAll(filepath.Dir(cfg.WALPath), 0o750); err != nil {
		return nil, fmt.Errorf("persistence: mkdir wal dir: %w", err)
	}

	wal, err := OpenWAL(fsys, cfg.WALPath)
	if err != nil {
		return nil, err
	}

	segments, err := listSegments(fsys, cfg.incrementalsDir())
	if err != nil {
		return nil, err
	}
	nextSeq := uint64(1)
	for _, name := range segments {
		if n, ok := segmentSeq(name); ok && n+1 > nextSeq {
			nextSeq = n + 1
		}
	}

	s := &Store{
		fsys:           fsys,
		atomicWriter:   fs.NewAtomicWriter(fsys),
		cfg:            cfg,
		logger:         logging.WithComponent("persistence"),
		wal:            wal,
		nextSegmentSeq: nextSeq,
		sync:           newSyncState(nil),
	}
	s.storageAvailable.Store(true)
	s.group = newGroupCommitter(cfg.GroupCommit, s.flushBatch)
	return s, nil
}

// SetStateProvider installs the callback a synchronous checkpoint uses to
// snapshot current in-memory state (the async path deliberately avoids
// this and reloads from disk instead; see compaction.go).
func (s *Store) SetStateProvider(provider StateProvider) {
	s.stateProvider = provider
}

// StorageAvailable reports whether the last snapshot or segment-rotation
// write succeeded (a failure downgrades to WAL-only mode until the next
// successful checkpoint).
func (s *Store) StorageAvailable() bool {
	return s.storageAvailable.Load()
}

// InFlightCheckpoints reports the number of async checkpoint requests that
// have not finished yet, for shutdown code that drains background work. A
// request that joins an already running checkpoint counts until that
// checkpoint finishes.
func (s *Store) InFlightCheckpoints() int64 {
	return s.checkpointInFlight.Load()
}

// Recover replays durable state in order: the snapshot, then each
// incremental segment, then the WAL tail. apply is invoked once per decoded
// segment/WAL record with tail-truncation tolerance; the snapshot is
// returned separately since its wire format is a full mapping, not a record
// stream, and the caller (the vectordb registry) is what knows how to turn
// either shape into live collections.
func (s *Store) Recover(apply func(Record) error) (Snapshot, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	snap, err := LoadSnapshot(s.fsys, s.cfg.SnapshotPath)
	if err != nil {
		return Snapshot{}, err
	}

	segments, err := listSegments(s.fsys, s.cfg.incrementalsDir())
	if err != nil {
		return Snapshot{}, err
	}
	for _, name := range segments {
		data, err := s.fsys.ReadFile(filepath.Join(s.cfg.incrementalsDir(), name))
		if err != nil {
			return Snapshot{}, fmt.Errorf("persistence: read segment %q: %w", name, err)
		}
		if err := replayLines(data, apply); err != nil {
			return Snapshot{}, fmt.Errorf("persistence: replay segment %q: %w", name, err)
		}
		if n, ok := segmentSeq(name); ok && n+1 > s.nextSegmentSeq {
			s.nextSegmentSeq = n + 1
		}
	}

	if err := s.wal.Replay(apply); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: replay wal: %w", err)
	}

	return snap, nil
}

// Append validates rec and commits it through the group-commit coalescer.
// It returns once rec's batch has been written (and, per the sync policy,
// fsynced). The caller is responsible for rollback of its in-memory mutation
// on a non-nil error.
func (s *Store) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.group.submit(rec)
}

// flushBatch is the group commit's flush callback: one WAL write covering
// every record in the batch, one sync decision for the whole batch, and a
// checkpoint trigger when the interval is reached.
func (s *Store) flushBatch(records []Record) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	start := s.sync.reserve(len(records))

	var buf []byte
	for _, r := range records {
		data, err := r.Encode()
		if err != nil {
			return err
		}
		buf = append(buf, data...)
	}

	if err := s.wal.Write(buf); err != nil {
		return err
	}

	if s.cfg.Sync.shouldSync(s.sync, start, len(records)) {
		if err := s.wal.Sync(); err != nil {
			return err
		}
		s.sync.recordSuccessfulSync()
	}

	s.writesSinceCheckpoint += len(records)
	if s.writesSinceCheckpoint >= s.cfg.CheckpointInterval {
		s.writesSinceCheckpoint = 0
		s.triggerCheckpointLocked()
	}

	return nil
}

// triggerCheckpointLocked runs inline when AsyncCheckpoints is off (it is
// already being called with ioMu held by flushBatch); otherwise it schedules
// a background checkpoint guarded by a single-flight group so a burst of
// writes crossing the interval repeatedly only schedules one.
func (s *Store) triggerCheckpointLocked() {
	if !s.cfg.AsyncCheckpoints {
		if err := s.runCheckpointLocked(s.compactFromMemoryLocked); err != nil {
			s.logger.Error().Err(err).Msg("checkpoint failed")
		}
		return
	}

	s.checkpointInFlight.Add(1)
	done := s.checkpointSF.DoChan("checkpoint", func() (any, error) {
		s.ioMu.Lock()
		defer s.ioMu.Unlock()
		if err := s.runCheckpointLocked(s.compactFromDiskLocked); err != nil {
			s.logger.Error().Err(err).Msg("async checkpoint failed")
		}
		return nil, nil
	})
	go func() {
		<-done
		s.checkpointInFlight.Add(-1)
	}()
}

// runCheckpointLocked runs one checkpoint: rotate the WAL into a new
// segment, fsync the rename, and — once enough segments have accumulated —
// compact into a fresh snapshot and clear them. Callers must hold ioMu.
func (s *Store) runCheckpointLocked(compact func([]string) error) error {
	size, err := s.wal.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	seq := s.nextSegmentSeq
	s.nextSegmentSeq++

	segPath, err := rotateSegment(s.fsys, s.cfg.WALPath, s.cfg.incrementalsDir(), seq)
	if err != nil {
		s.storageAvailable.Store(false)
		return fmt.Errorf("persistence: checkpoint rotate: %w", err)
	}

	newWAL, err := OpenWAL(s.fsys, s.cfg.WALPath)
	if err != nil {
		s.storageAvailable.Store(false)
		return fmt.Errorf("persistence: checkpoint reopen wal: %w", err)
	}
	_ = s.wal.Close()
	s.wal = newWAL

	if err := fsyncPath(s.fsys, s.cfg.incrementalsDir()); err != nil {
		s.storageAvailable.Store(false)
		return fmt.Errorf("persistence: checkpoint fsync incrementals dir: %w", err)
	}
	if err := fsyncPath(s.fsys, filepath.Dir(s.cfg.WALPath)); err != nil {
		s.storageAvailable.Store(false)
		return fmt.Errorf("persistence: checkpoint fsync wal dir: %w", err)
	}
	s.logger.Debug().Str("segment", segPath).Msg("rotated wal")

	segments, err := listSegments(s.fsys, s.cfg.incrementalsDir())
	if err != nil {
		return fmt.Errorf("persistence: checkpoint list segments: %w", err)
	}
	if len(segments) < s.cfg.CheckpointCompactAfter {
		s.storageAvailable.Store(true)
		return nil
	}

	if err := compact(segments); err != nil {
		s.storageAvailable.Store(false)
		return fmt.Errorf("persistence: checkpoint compact: %w", err)
	}
	s.storageAvailable.Store(true)
	return nil
}

// compactFromMemoryLocked writes a fresh snapshot from the registry's live
// state — the synchronous checkpoint path, safe because it runs inline with
// the triggering write so there's no scheduling race to guard against.
func (s *Store) compactFromMemoryLocked(segments []string) error {
	if s.stateProvider == nil {
		return s.compactFromDiskLocked(segments)
	}
	if err := WriteSnapshot(s.atomicWriter, s.cfg.SnapshotPath, s.stateProvider()); err != nil {
		return err
	}
	return removeSegments(s.fsys, s.cfg.incrementalsDir(), segments)
}

// compactFromDiskLocked rebuilds the snapshot purely from what's on disk
// (the existing snapshot plus the segments being compacted): the async
// path's reload-from-disk, recompact, replace choreography.
func (s *Store) compactFromDiskLocked(segments []string) error {
	base, err := LoadSnapshot(s.fsys, s.cfg.SnapshotPath)
	if err != nil {
		return err
	}

	builder := newSnapshotBuilder(base)
	for _, name := range segments {
		data, err := s.fsys.ReadFile(filepath.Join(s.cfg.incrementalsDir(), name))
		if err != nil {
			return fmt.Errorf("persistence: read segment %q for compaction: %w", name, err)
		}
		if err := replayLines(data, builder.apply); err != nil {
			return fmt.Errorf("persistence: replay segment %q for compaction: %w", name, err)
		}
	}

	if err := WriteSnapshot(s.atomicWriter, s.cfg.SnapshotPath, builder.snapshot()); err != nil {
		return err
	}
	return removeSegments(s.fsys, s.cfg.incrementalsDir(), segments)
}

// Close closes the current WAL file handle.
func (s *Store) Close() error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.wal.Close()
}
