package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	atomicfile "github.com/natefinch/atomic"

	"github.com/vectral/vectral/pkg/fs"
)

const (
	segmentNameWidth = 20
	segmentExt       = ".jsonl"
)

func segmentPath(dir string, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%0*d%s", segmentNameWidth, seq, segmentExt))
}

// segmentSeq parses a segment file's base name back into its sequence
// number, for resuming the monotonic counter on restart. Any file whose name
// doesn't parse isn't a segment and is ignored.
func segmentSeq(name string) (uint64, bool) {
	base := strings.TrimSuffix(name, segmentExt)
	if !strings.HasSuffix(name, segmentExt) || len(base) != segmentNameWidth {
		return 0, false
	}
	n, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// rotateSegment renames the WAL file to the next incremental segment.
// It tries fsys.Rename first so same-filesystem rotation (the
// common case, and the only case fault-injection tests can observe through
// the fs.FS seam) goes through the abstraction; a cross-device rename error
// falls back to github.com/natefinch/atomic's copy-and-replace, which
// operates on real OS paths and so can't itself be fault-injected.
func rotateSegment(fsys fs.FS, walPath, incrementalsDir string, seq uint64) (string, error) {
	if err := fsys.MkdirAll(incrementalsDir, 0o750); err != nil {
		return "", fmt.Errorf("persistence: mkdir incrementals %q: %w", incrementalsDir, err)
	}

	dst := segmentPath(incrementalsDir, seq)

	err := fsys.Rename(walPath, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("persistence: rotate wal segment: %w", err)
	}

	if replaceErr := atomicfile.ReplaceFile(walPath, dst); replaceErr != nil {
		return "", fmt.Errorf("persistence: rotate wal segment across filesystems: %w", replaceErr)
	}
	return dst, nil
}

// listSegments returns the incrementals directory's segment file names in
// ascending sequence order (lexicographic on a fixed-width zero-padded
// number is numeric order).
func listSegments(fsys fs.FS, incrementalsDir string) ([]string, error) {
	entries, err := fsys.ReadDir(incrementalsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: list incrementals %q: %w", incrementalsDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := segmentSeq(e.Name()); !ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func removeSegments(fsys fs.FS, incrementalsDir string, names []string) error {
	for _, name := range names {
		err := fsys.Remove(filepath.Join(incrementalsDir, name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("persistence: remove segment %q: %w", name, err)
		}
	}
	return nil
}

// fsyncPath opens path (a file or directory) and fsyncs it, for persisting
// the rename itself rather than just a file's contents.
func fsyncPath(fsys fs.FS, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("persistence: open %q for sync: %w", path, err)
	}

	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return fmt.Errorf("persistence: sync %q: %w", path, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("persistence: close %q after sync: %w", path, closeErr)
	}
	return nil
}
