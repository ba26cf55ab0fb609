package vfs

import (
	"sync"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
)

// DefaultFDCapacity bounds the descriptor table, matching the usual Linux
// soft limit.
const DefaultFDCapacity = 1024

// FDTable maps small non-negative integers to shared file-like objects.
// Descriptors 0-2 are pre-wired to stdio; freed descriptors are reused
// smallest-first.
type FDTable struct {
	mu       sync.Mutex
	files    []FileLike // index is the fd; nil entries are free
	capacity int
}

func NewFDTable(capacity int) *FDTable {
	// Stdio always fits.
	if capacity < 3 {
		capacity = 3
	}
	t := &FDTable{
		files:    make([]FileLike, 3, capacity),
		capacity: capacity,
	}
	for fd := 0; fd < 3; fd++ {
		t.files[fd] = &stdio{fd: fd}
	}
	return t
}

// Register adds f to the table and returns its descriptor, or EMFILE when
// the table is full.
func (t *FDTable) Register(f FileLike) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, slot := range t.files {
		if slot == nil {
			t.files[fd] = f
			return fd, nil
		}
	}
	if len(t.files) >= t.capacity {
		return 0, backend.ErrnoErr(syscall.EMFILE)
	}
	t.files = append(t.files, f)
	return len(t.files) - 1, nil
}

// Get returns the object for fd, or EBADF.
func (t *FDTable) Get(fd int) (FileLike, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.files) || t.files[fd] == nil {
		return nil, backend.ErrnoErr(syscall.EBADF)
	}
	return t.files[fd], nil
}

// GetFile returns the File behind fd. A descriptor of any other kind fails
// the downcast and reports EBADF.
func (t *FDTable) GetFile(fd int) (*File, error) {
	fl, err := t.Get(fd)
	if err != nil {
		return nil, err
	}
	f, ok := fl.(*File)
	if !ok {
		return nil, backend.ErrnoErr(syscall.EBADF)
	}
	return f, nil
}

// GetDirectory returns the Directory behind fd, or EBADF.
func (t *FDTable) GetDirectory(fd int) (*Directory, error) {
	fl, err := t.Get(fd)
	if err != nil {
		return nil, err
	}
	d, ok := fl.(*Directory)
	if !ok {
		return nil, backend.ErrnoErr(syscall.EBADF)
	}
	return d, nil
}

// Close releases fd and closes the object once this last table reference is
// gone.
func (t *FDTable) Close(fd int) error {
	t.mu.Lock()
	if fd < 3 || fd >= len(t.files) || t.files[fd] == nil {
		t.mu.Unlock()
		return backend.ErrnoErr(syscall.EBADF)
	}
	f := t.files[fd]
	t.files[fd] = nil
	t.mu.Unlock()

	return f.Close()
}
