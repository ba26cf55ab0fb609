// Package posix exposes Linux-ABI-shaped file operations on top of the VFS
// layer. Entry points are methods on OS returning a value and a
// syscall.Errno error; ErrnoResult folds the pair into the raw
// negative-errno convention for callers that speak the ABI directly.
package posix

import (
	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/vfs"
)

const (
	AT_FDCWD     = -100
	AT_REMOVEDIR = 0x200
)

// OS is the process-wide syscall surface: one descriptor table and one
// path/mount resolver, shared by every task.
type OS struct {
	fds      *vfs.FDTable
	resolver *vfs.Resolver
}

// NewOS boots the VFS with root mounted at "/".
func NewOS(root backend.Driver) *OS {
	return NewOSWithCapacity(root, vfs.DefaultFDCapacity)
}

// NewOSWithCapacity bounds the descriptor table explicitly.
func NewOSWithCapacity(root backend.Driver, fdCapacity int) *OS {
	return &OS{
		fds:      vfs.NewFDTable(fdCapacity),
		resolver: vfs.NewResolver(root),
	}
}

// Resolver exposes the path/mount state, mainly so boot code can register
// mountable filesystem instances.
func (os *OS) Resolver() *vfs.Resolver { return os.resolver }

// ErrnoResult folds a (value, error) pair into the negative-errno ABI shape.
func ErrnoResult(n int, err error) int {
	if err != nil {
		return -int(backend.Errno(err))
	}
	return n
}

// atCwd reports whether the dirfd/path pair resolves against the working
// directory, behaving exactly like the non-at call variant.
func atCwd(dirfd int, path string) bool {
	return len(path) > 0 && path[0] == '/' || dirfd == AT_FDCWD
}
