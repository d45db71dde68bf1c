package persistence

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/vectral/vectral/pkg/fs"
)

// WAL is the append-only tail file. It owns the open file handle; callers
// serialize all access to it (the persistence-serial semaphore lives one
// level up, in Store).
type WAL struct {
	fsys fs.FS
	path string
	file fs.File
}

// OpenWAL opens (creating if absent) the WAL file at path for append and
// for the seek-and-read-from-start that Replay needs.
func OpenWAL(fsys fs.FS, path string) (*WAL, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("persistence: open wal %q: %w", path, err)
	}
	return &WAL{fsys: fsys, path: path, file: f}, nil
}

// Write appends already-encoded record bytes to the tail. The file was
// opened O_APPEND, so the write lands at the current end of file regardless
// of any prior Seek a Replay call left behind.
func (w *WAL) Write(data []byte) error {
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("persistence: append wal %q: %w", w.path, err)
	}
	return nil
}

// Sync fsyncs the WAL file.
func (w *WAL) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("persistence: sync wal %q: %w", w.path, err)
	}
	return nil
}

// Size reports the WAL's current length.
func (w *WAL) Size() (int64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("persistence: stat wal %q: %w", w.path, err)
	}
	return info.Size(), nil
}

// Truncate clears the WAL in place and syncs it. Nothing in the repository
// calls it: checkpoint rotation renames the WAL into a segment instead.
func (w *WAL) Truncate() error {
	fd := w.file.Fd()
	if fd == 0 {
		return fmt.Errorf("persistence: truncate wal %q: invalid file descriptor", w.path)
	}
	if err := syscall.Ftruncate(int(fd), 0); err != nil {
		return fmt.Errorf("persistence: truncate wal %q: %w", w.path, err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("persistence: seek wal %q after truncate: %w", w.path, err)
	}
	return w.Sync()
}

// Close closes the underlying file handle.
func (w *WAL) Close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("persistence: close wal %q: %w", w.path, err)
	}
	return nil
}

// Replay decodes every line currently in the WAL and calls apply for each,
// in order, tolerating a truncated final line. It leaves the file
// positioned at the end, ready for further appends.
func (w *WAL) Replay(apply func(Record) error) error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("persistence: seek wal %q for replay: %w", w.path, err)
	}

	data, err := io.ReadAll(w.file)
	if err != nil {
		return fmt.Errorf("persistence: read wal %q: %w", w.path, err)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("persistence: seek wal %q to tail: %w", w.path, err)
	}

	return replayLines(data, apply)
}

// replayLines implements the tail-truncation-tolerant decode/apply loop
// shared by the WAL tail and every rotated segment: a line that
// fails to decode or validate is a hard error unless it is the file's last
// line, in which case it is a discarded partial write.
func replayLines(data []byte, apply func(Record) error) error {
	lines := bytes.Split(data, []byte("\n"))

	for i, line := range lines {
		isLast := i == len(lines)-1

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		rec, err := DecodeRecord(trimmed)
		if err != nil {
			if isLast {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrWALReplay, err)
		}

		if err := rec.Validate(); err != nil {
			if isLast {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrWALReplay, err)
		}

		if err := apply(rec); err != nil {
			return err
		}
	}

	return nil
}
