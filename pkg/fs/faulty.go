package fs

import (
	"io"
	"os"
	"sync"
)

// FaultFunc decides whether a call should fail. op identifies the call site
// (for example "sync", "rename", "write"); path is the file or directory
// involved, when known. A non-nil return aborts the call with that error.
type FaultFunc func(op, path string) error

// Faulty wraps an [FS] and lets tests inject errors at named call sites,
// so the persistence layer's crash-safety claims
// can be exercised without a real crash. Unset hooks pass through to the
// wrapped filesystem unchanged.
type Faulty struct {
	inner FS
	fn    FaultFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewFaulty wraps inner with a fault hook. A nil fn injects no faults and
// behaves like a plain passthrough.
func NewFaulty(inner FS, fn FaultFunc) *Faulty {
	if inner == nil {
		panic("inner is nil")
	}

	return &Faulty{inner: inner, fn: fn, calls: make(map[string]int)}
}

// CallCount returns how many times op was attempted (fault or not).
func (f *Faulty) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) fault(op, path string) error {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()

	if f.fn == nil {
		return nil
	}

	return f.fn(op, path)
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.fault("open", path); err != nil {
		return nil, err
	}

	inner, err := f.inner.Open(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{inner: inner, owner: f, path: path}, nil
}

func (f *Faulty) Create(path string) (File, error) {
	if err := f.fault("create", path); err != nil {
		return nil, err
	}

	inner, err := f.inner.Create(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{inner: inner, owner: f, path: path}, nil
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.fault("openfile", path); err != nil {
		return nil, err
	}

	inner, err := f.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{inner: inner, owner: f, path: path}, nil
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.fault("readfile", path); err != nil {
		return nil, err
	}

	return f.inner.ReadFile(path)
}

func (f *Faulty) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := f.fault("writefile", path); err != nil {
		return err
	}

	return f.inner.WriteFile(path, data, perm)
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.fault("readdir", path); err != nil {
		return nil, err
	}

	return f.inner.ReadDir(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.fault("mkdirall", path); err != nil {
		return err
	}

	return f.inner.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.fault("stat", path); err != nil {
		return nil, err
	}

	return f.inner.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.fault("exists", path); err != nil {
		return false, err
	}

	return f.inner.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.fault("remove", path); err != nil {
		return err
	}

	return f.inner.Remove(path)
}

func (f *Faulty) RemoveAll(path string) error {
	if err := f.fault("removeall", path); err != nil {
		return err
	}

	return f.inner.RemoveAll(path)
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.fault("rename", newpath); err != nil {
		return err
	}

	return f.inner.Rename(oldpath, newpath)
}

// faultyFile wraps a [File] so Sync (fsync) and Write can be failed
// independently of the open call that produced them — the most common
// crash point the WAL/snapshot code has to tolerate.
type faultyFile struct {
	inner File
	owner *Faulty
	path  string
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	return ff.inner.Read(p)
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.owner.fault("write", ff.path); err != nil {
		return 0, err
	}

	return ff.inner.Write(p)
}

func (ff *faultyFile) Close() error {
	if err := ff.owner.fault("close", ff.path); err != nil {
		return err
	}

	return ff.inner.Close()
}

func (ff *faultyFile) Seek(offset int64, whence int) (int64, error) {
	return ff.inner.Seek(offset, whence)
}

func (ff *faultyFile) Fd() uintptr {
	return ff.inner.Fd()
}

func (ff *faultyFile) Stat() (os.FileInfo, error) {
	return ff.inner.Stat()
}

func (ff *faultyFile) Sync() error {
	if err := ff.owner.fault("sync", ff.path); err != nil {
		return err
	}

	return ff.inner.Sync()
}

func (ff *faultyFile) Chmod(mode os.FileMode) error {
	return ff.inner.Chmod(mode)
}

// Compile-time interface checks.
var (
	_ FS                 = (*Faulty)(nil)
	_ File               = (*faultyFile)(nil)
	_ io.ReadWriteCloser = (*faultyFile)(nil)
)
