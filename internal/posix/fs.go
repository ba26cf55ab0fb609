package posix

import (
	"log/slog"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/vfs"
)

func joinPath(base, name string) string {
	if base == "/" {
		return "/" + name
	}
	return base + "/" + name
}

// SysOpen opens path and returns its index in the descriptor table. EMFILE
// if the table is full.
func (os *OS) SysOpen(path string, flags int, mode uint32) (int, error) {
	slog.Debug("sys_open", "path", path, "flags", flags, "mode", mode)

	opts := vfs.FlagsToOptions(flags, mode)
	abs := os.resolver.Absolute(path)
	drv, rel, err := os.resolver.Locate(abs)
	if err != nil {
		return 0, err
	}

	if opts.Directory {
		dh, err := drv.OpenDir(rel, opts)
		if err != nil {
			return 0, backend.ErrnoErr(backend.Errno(err))
		}
		return os.register(vfs.NewDirectory(dh, abs))
	}

	fl, err := vfs.OpenFileOrDir(drv.OpenFile, drv.OpenDir, rel, abs, opts)
	if err != nil {
		return 0, err
	}
	return os.register(fl)
}

func (os *OS) register(fl vfs.FileLike) (int, error) {
	fd, err := os.fds.Register(fl)
	if err != nil {
		fl.Close()
		return 0, err
	}
	return fd, nil
}

// SysOpenat opens path relative to the directory open at dirfd. An absolute
// path or AT_FDCWD delegates to SysOpen.
func (os *OS) SysOpenat(dirfd int, path string, flags int, mode uint32) (int, error) {
	slog.Debug("sys_openat", "dirfd", dirfd, "path", path, "flags", flags, "mode", mode)

	if atCwd(dirfd, path) {
		return os.SysOpen(path, flags, mode)
	}

	dir, err := os.fds.GetDirectory(dirfd)
	if err != nil {
		return 0, err
	}
	opts := vfs.FlagsToOptions(flags, mode)
	fl, err := vfs.OpenFileOrDir(dir.OpenFileAt, dir.OpenDirAt, path, joinPath(dir.Path(), path), opts)
	if err != nil {
		return 0, err
	}
	return os.register(fl)
}

func (os *OS) SysClose(fd int) (int, error) {
	slog.Debug("sys_close", "fd", fd)

	if err := os.fds.Close(fd); err != nil {
		return 0, err
	}
	return 0, nil
}

func (os *OS) SysRead(fd int, buf []byte) (int, error) {
	fl, err := os.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	return fl.Read(buf)
}

func (os *OS) SysWrite(fd int, buf []byte) (int, error) {
	fl, err := os.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	return fl.Write(buf)
}

// SysLseek repositions the cursor of the file open at fd and returns the new
// absolute offset. Whence: 0 start, 1 current, 2 end.
func (os *OS) SysLseek(fd int, offset int64, whence int) (int64, error) {
	slog.Debug("sys_lseek", "fd", fd, "offset", offset, "whence", whence)

	f, err := os.fds.GetFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Seek(offset, whence)
}

// SysStat fills st with the metadata of the file at path. The output buffer
// is either fully populated or left untouched.
func (os *OS) SysStat(path string, st *Stat) (int, error) {
	slog.Debug("sys_stat", "path", path)

	if st == nil {
		return 0, backend.ErrnoErr(syscall.EFAULT)
	}
	abs := os.resolver.Absolute(path)
	drv, rel, err := os.resolver.Locate(abs)
	if err != nil {
		return 0, err
	}
	fh, err := drv.OpenFile(rel, backend.OpenOptions{Read: true})
	if err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	defer fh.Close()
	attr, err := fh.Attr()
	if err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	*st = fillStat(attr, vfs.Timespec{}, vfs.Timespec{})
	return 0, nil
}

// SysFstat fills st with the metadata of the open descriptor. Directory
// descriptors do not support attribute queries and report EBADF.
func (os *OS) SysFstat(fd int, st *Stat) (int, error) {
	slog.Debug("sys_fstat", "fd", fd)

	if st == nil {
		return 0, backend.ErrnoErr(syscall.EFAULT)
	}
	fl, err := os.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	attr, err := fl.Stat()
	if err != nil {
		return 0, err
	}
	var atime, mtime vfs.Timespec
	if f, ok := fl.(*vfs.File); ok {
		atime, mtime = f.Times()
	}
	*st = fillStat(attr, atime, mtime)
	return 0, nil
}

// SysLstat does not model symbolic link metadata; it fills a zeroed snapshot
// and reports success.
func (os *OS) SysLstat(path string, st *Stat) (int, error) {
	slog.Debug("sys_lstat", "path", path)

	if st == nil {
		return 0, backend.ErrnoErr(syscall.EFAULT)
	}
	*st = Stat{}
	return 0, nil
}

func (os *OS) SysMkdirat(dirfd int, path string, mode uint32) (int, error) {
	slog.Debug("sys_mkdirat", "dirfd", dirfd, "path", path, "mode", mode)

	if atCwd(dirfd, path) {
		abs := os.resolver.Absolute(path)
		drv, rel, err := os.resolver.Locate(abs)
		if err != nil {
			return 0, err
		}
		if err := drv.CreateDir(rel); err != nil {
			return 0, backend.ErrnoErr(backend.Errno(err))
		}
		return 0, nil
	}

	dir, err := os.fds.GetDirectory(dirfd)
	if err != nil {
		return 0, err
	}
	if err := dir.CreateDirAt(path); err != nil {
		return 0, err
	}
	return 0, nil
}

// SysChdir updates the process-wide working directory.
func (os *OS) SysChdir(path string) (int, error) {
	slog.Debug("sys_chdir", "path", path)

	if err := os.resolver.Chdir(path); err != nil {
		return 0, err
	}
	return 0, nil
}

// SysGetcwd writes the working directory plus a NUL terminator into buf and
// returns the number of bytes written. ERANGE if buf cannot hold both.
func (os *OS) SysGetcwd(buf []byte) (int, error) {
	slog.Debug("sys_getcwd", "size", len(buf))

	if buf == nil {
		return 0, backend.ErrnoErr(syscall.EFAULT)
	}
	cwd := os.resolver.Cwd()
	if len(cwd)+1 > len(buf) {
		return 0, backend.ErrnoErr(syscall.ERANGE)
	}
	n := copy(buf, cwd)
	buf[n] = 0
	return n + 1, nil
}

// SysRename renames oldPath to newPath, replacing the destination if it is
// present. Both paths must live in the same mounted filesystem.
func (os *OS) SysRename(oldPath, newPath string) (int, error) {
	slog.Debug("sys_rename", "old", oldPath, "new", newPath)

	oldDrv, oldRel, err := os.resolver.Locate(os.resolver.Absolute(oldPath))
	if err != nil {
		return 0, err
	}
	newDrv, newRel, err := os.resolver.Locate(os.resolver.Absolute(newPath))
	if err != nil {
		return 0, err
	}
	if oldDrv != newDrv {
		return 0, backend.ErrnoErr(syscall.EXDEV)
	}
	if err := oldDrv.Rename(oldRel, newRel); err != nil {
		return 0, backend.ErrnoErr(backend.Errno(err))
	}
	return 0, nil
}

// SysUnlinkat removes a file, or with AT_REMOVEDIR an empty directory.
func (os *OS) SysUnlinkat(dirfd int, path string, flags int) (int, error) {
	slog.Debug("sys_unlinkat", "dirfd", dirfd, "path", path, "flags", flags)

	var removeDir bool
	switch flags {
	case 0:
	case AT_REMOVEDIR:
		removeDir = true
	default:
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}

	if atCwd(dirfd, path) {
		drv, rel, err := os.resolver.Locate(os.resolver.Absolute(path))
		if err != nil {
			return 0, err
		}
		if removeDir {
			err = drv.RemoveDir(rel)
		} else {
			err = drv.RemoveFile(rel)
		}
		if err != nil {
			return 0, backend.ErrnoErr(backend.Errno(err))
		}
		return 0, nil
	}

	dir, err := os.fds.GetDirectory(dirfd)
	if err != nil {
		return 0, err
	}
	if err := dir.RemoveAt(path, removeDir); err != nil {
		return 0, err
	}
	return 0, nil
}

func (os *OS) SysFsync(fd int) (int, error) {
	f, err := os.fds.GetFile(fd)
	if err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (os *OS) SysFtruncate(fd int, size int64) (int, error) {
	f, err := os.fds.GetFile(fd)
	if err != nil {
		return 0, err
	}
	if err := f.Truncate(size); err != nil {
		return 0, err
	}
	return 0, nil
}

// ReadFileAt reads up to size bytes at offset from the file open at fd
// without moving its cursor.
func (os *OS) ReadFileAt(fd int, offset, size int64) ([]byte, error) {
	fl, err := os.fds.Get(fd)
	if err != nil {
		return nil, err
	}
	attr, err := fl.Stat()
	if err != nil {
		return nil, err
	}
	f, ok := fl.(*vfs.File)
	if !ok {
		return nil, backend.ErrnoErr(syscall.EBADF)
	}
	if offset >= int64(attr.Size) {
		return nil, backend.ErrnoErr(syscall.EINVAL)
	}
	if rest := int64(attr.Size) - offset; size > rest {
		size = rest
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ReadDirEntries lists the directory open at dirfd, getdents-style.
func (os *OS) ReadDirEntries(dirfd int) ([]backend.DirEntry, error) {
	dir, err := os.fds.GetDirectory(dirfd)
	if err != nil {
		return nil, err
	}
	return dir.ReadDir()
}
