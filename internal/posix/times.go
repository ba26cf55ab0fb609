package posix

import (
	"log/slog"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/vfs"
)

type Timespec = vfs.Timespec

const (
	UTIME_NOW  = vfs.UTIME_NOW
	UTIME_OMIT = vfs.UTIME_OMIT
)

// SysUtimensat updates the timestamp overlay of a file. A nil times sets
// both atime and mtime to the current time. An empty path targets dirfd
// itself, which must then be an open regular file; otherwise the path is
// resolved dirfd-relative and opened through the usual file-or-directory
// fallback.
func (os *OS) SysUtimensat(dirfd int, path string, times *[2]Timespec, flags int) (int, error) {
	slog.Debug("sys_utimensat", "dirfd", dirfd, "path", path, "flags", flags)

	if dirfd < 0 && dirfd != AT_FDCWD {
		return 0, backend.ErrnoErr(syscall.EBADF)
	}

	var atime, mtime Timespec
	if times == nil {
		atime = Timespec{Nsec: UTIME_NOW}
		mtime = Timespec{Nsec: UTIME_NOW}
	} else {
		atime, mtime = times[0], times[1]
	}

	if path == "" {
		f, err := os.fds.GetFile(dirfd)
		if err != nil {
			return 0, err
		}
		f.SetTimes(atime, mtime)
		return 0, nil
	}

	opts := backend.OpenOptions{Read: true}
	var fl vfs.FileLike
	if atCwd(dirfd, path) {
		abs := os.resolver.Absolute(path)
		drv, rel, err := os.resolver.Locate(abs)
		if err != nil {
			return 0, err
		}
		fl, err = vfs.OpenFileOrDir(drv.OpenFile, drv.OpenDir, rel, abs, opts)
		if err != nil {
			return 0, err
		}
	} else {
		dir, err := os.fds.GetDirectory(dirfd)
		if err != nil {
			return 0, err
		}
		fl, err = vfs.OpenFileOrDir(dir.OpenFileAt, dir.OpenDirAt, path, joinPath(dir.Path(), path), opts)
		if err != nil {
			return 0, err
		}
	}
	defer fl.Close()

	if f, ok := fl.(*vfs.File); ok {
		f.SetTimes(atime, mtime)
	}
	return 0, nil
}
