package vfs

import (
	"log/slog"
	"sync"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
)

// PollState reports descriptor readiness. Nothing in this layer ever blocks,
// so the values are static per kind.
type PollState struct {
	Readable bool
	Writable bool
}

// FileLike is the polymorphic object behind every file descriptor. Variants
// implement the full operation set; operations a variant does not support
// return EBADF rather than being absent.
type FileLike interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Stat() (backend.Attr, error)
	Poll() (PollState, error)
	SetNonblocking(nonblocking bool) error
	Close() error
}

// File is an open regular file: one backend handle behind an exclusive lock,
// a cursor, and the timestamp overlay. The overlay fields are independent of
// backend-reported times and stay zero until set through utimensat.
type File struct {
	mu     sync.Mutex
	handle backend.FileHandle
	pos    int64

	flagRead   bool
	flagWrite  bool
	flagAppend bool

	atime Timespec
	mtime Timespec
}

func NewFile(handle backend.FileHandle, opts backend.OpenOptions) *File {
	return &File{
		handle:     handle,
		flagRead:   opts.Read,
		flagWrite:  opts.Write,
		flagAppend: opts.Append,
	}
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flagRead {
		return 0, backend.ErrnoErr(syscall.EBADF)
	}
	n, err := f.handle.ReadAt(p, f.pos)
	if err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	f.pos += int64(n)
	return n, nil
}

// ReadAt reads at an explicit offset without moving the cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flagRead {
		return 0, backend.ErrnoErr(syscall.EBADF)
	}
	n, err := f.handle.ReadAt(p, off)
	if err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flagWrite {
		return 0, backend.ErrnoErr(syscall.EBADF)
	}
	if f.flagAppend {
		attr, err := f.handle.Attr()
		if err != nil {
			return 0, backend.ErrnoErr(backend.Errno(err))
		}
		f.pos = int64(attr.Size)
	}
	n, err := f.handle.WriteAt(p, f.pos)
	if err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	f.pos += int64(n)
	return n, nil
}

// Seek whence values follow lseek: 0 start, 1 current, 2 end.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = f.pos
	case 2:
		attr, err := f.handle.Attr()
		if err != nil {
			return 0, backend.ErrnoErr(backend.Errno(err))
		}
		base = int64(attr.Size)
	default:
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	pos := base + offset
	if pos < 0 {
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	f.pos = pos
	return pos, nil
}

func (f *File) Stat() (backend.Attr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	attr, err := f.handle.Attr()
	if err != nil {
		return backend.Attr{}, backend.ErrnoErr(backend.Errno(err))
	}
	return attr, nil
}

func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flagWrite {
		return backend.ErrnoErr(syscall.EBADF)
	}
	if err := f.handle.Truncate(size); err != nil {
		return backend.ErrnoErr(backend.Errno(err))
	}
	return nil
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.handle.Sync(); err != nil {
		return backend.ErrnoErr(backend.Errno(err))
	}
	return nil
}

func (f *File) Poll() (PollState, error) {
	return PollState{Readable: true, Writable: true}, nil
}

func (f *File) SetNonblocking(bool) error { return nil }

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle.Close()
}

// SetTimes applies utimensat candidates to the timestamp overlay.
func (f *File) SetTimes(atime, mtime Timespec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.atime.SetAsUtime(atime)
	f.mtime.SetAsUtime(mtime)
}

// Times returns the current overlay values, zero if never set.
func (f *File) Times() (atime, mtime Timespec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atime, f.mtime
}

// Directory is an open directory: one backend handle behind an exclusive
// lock plus the resolved absolute path used as the anchor for *at lookups
// through this descriptor.
type Directory struct {
	mu     sync.Mutex
	handle backend.DirHandle
	path   string
}

func NewDirectory(handle backend.DirHandle, path string) *Directory {
	return &Directory{handle: handle, path: path}
}

// Path returns the absolute path this directory was opened at.
func (d *Directory) Path() string { return d.path }

// Only File objects support byte I/O and attribute queries.

func (d *Directory) Read(p []byte) (int, error) {
	return 0, backend.ErrnoErr(syscall.EBADF)
}

func (d *Directory) Write(p []byte) (int, error) {
	return 0, backend.ErrnoErr(syscall.EBADF)
}

func (d *Directory) Stat() (backend.Attr, error) {
	return backend.Attr{}, backend.ErrnoErr(syscall.EBADF)
}

func (d *Directory) Poll() (PollState, error) {
	return PollState{Readable: true, Writable: false}, nil
}

func (d *Directory) SetNonblocking(bool) error { return nil }

func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle.Close()
}

func (d *Directory) ReadDir() ([]backend.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.handle.ReadDir()
	if err != nil {
		return nil, backend.ErrnoErr(backend.Errno(err))
	}
	return entries, nil
}

func (d *Directory) OpenFileAt(path string, opts backend.OpenOptions) (backend.FileHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle.OpenFileAt(path, opts)
}

func (d *Directory) OpenDirAt(path string, opts backend.OpenOptions) (backend.DirHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle.OpenDirAt(path, opts)
}

func (d *Directory) CreateDirAt(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.CreateDirAt(path); err != nil {
		return backend.ErrnoErr(backend.Errno(err))
	}
	return nil
}

func (d *Directory) RemoveAt(path string, removeDir bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.handle.RemoveAt(path, removeDir); err != nil {
		return backend.ErrnoErr(backend.Errno(err))
	}
	return nil
}

// stdio backs descriptors 0, 1 and 2. Writes land in the kernel log; reads
// report end of input.
type stdio struct {
	fd int
}

func (s *stdio) Read(p []byte) (int, error) { return 0, nil }

func (s *stdio) Write(p []byte) (int, error) {
	source := "stdout"
	if s.fd == 2 {
		source = "stderr"
	}
	slog.Info(string(p), "method", source)
	return len(p), nil
}

func (s *stdio) Stat() (backend.Attr, error) {
	return backend.Attr{Type: backend.TypeCharDevice, Perm: 0o620}, nil
}

func (s *stdio) Poll() (PollState, error) {
	return PollState{Readable: true, Writable: true}, nil
}

func (s *stdio) SetNonblocking(bool) error { return nil }

func (s *stdio) Close() error { return nil }
