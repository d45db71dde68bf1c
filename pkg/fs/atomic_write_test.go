package fs_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vectral/vectral/pkg/fs"
)

const testContentHello = "hello, vectral\n"

func TestAtomicWriteFile_VisibleAfterSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if err != nil {
		t.Fatalf("WriteWithDefaults: %v", err)
	}

	got, err := fs.NewReal().ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriteFile_RenameFailureLeavesNoPartialFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	injected := errors.New("injected rename failure")

	faulty := fs.NewFaulty(fs.NewReal(), func(op, _ string) error {
		if op == "rename" {
			return injected
		}

		return nil
	})

	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if !errors.Is(err, injected) {
		t.Fatalf("err = %v, want wrapping %v", err, injected)
	}

	if _, statErr := fs.NewReal().Stat(path); statErr == nil {
		t.Fatalf("final file must not exist after a failed rename")
	}

	entries, err := fs.NewReal().ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("temp file was not cleaned up after rename failure: %v", entries)
	}
}

func TestAtomicWriteFile_DirSyncFailureReportsButKeepsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	injected := errors.New("injected dir sync failure")

	faulty := fs.NewFaulty(fs.NewReal(), func(op, p string) error {
		if op == "sync" && p == dir {
			return injected
		}

		return nil
	})

	writer := fs.NewAtomicWriter(faulty)

	err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello))
	if !errors.Is(err, fs.ErrAtomicWriteDirSync) {
		t.Fatalf("err = %v, want wrapping ErrAtomicWriteDirSync", err)
	}

	got, readErr := fs.NewReal().ReadFile(path)
	if readErr != nil {
		t.Fatalf("ReadFile: %v", readErr)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}
