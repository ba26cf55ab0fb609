package vfs

import (
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
)

// OpenFileOrDir opens path as a regular file and, if that fails, retries it
// as a directory. POSIX open() does not require callers to declare the kind
// ahead of time, but the backend exposes separate typed entry points; the
// retry approximates a single namespace over them.
//
// The retry clones the options with the traversal capability forced on and
// exclusive creation cleared, since a directory retry must never attempt to
// create anything. An EINVAL from the directory attempt means the name
// resolved to something that is not a directory either, and is reported as
// ENOTDIR; any other directory failure surfaces the original file-open error
// so that a plain missing path stays ENOENT.
//
// absPath is the resolved absolute path recorded on a resulting Directory as
// the anchor for later *at calls.
func OpenFileOrDir(
	openFile func(string, backend.OpenOptions) (backend.FileHandle, error),
	openDir func(string, backend.OpenOptions) (backend.DirHandle, error),
	path, absPath string,
	opts backend.OpenOptions,
) (FileLike, error) {
	fh, ferr := openFile(path, opts)
	if ferr == nil {
		return NewFile(fh, opts), nil
	}

	dirOpts := opts
	dirOpts.Execute = true
	dirOpts.CreateNew = false
	dh, derr := openDir(path, dirOpts)
	if derr != nil {
		if backend.Errno(derr) == syscall.EINVAL {
			return nil, backend.ErrnoErr(syscall.ENOTDIR)
		}
		return nil, backend.ErrnoErr(backend.Errno(ferr))
	}
	return NewDirectory(dh, absPath), nil
}
