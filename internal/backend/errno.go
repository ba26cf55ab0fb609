package backend

import (
	"errors"
	"io/fs"
	"syscall"
)

// Do the interface allocations only once for common
// Errno values.
var (
	errEBADF   error = syscall.EBADF
	errEINVAL  error = syscall.EINVAL
	errENOENT  error = syscall.ENOENT
	errENOTDIR error = syscall.ENOTDIR
	errEISDIR  error = syscall.EISDIR
)

// ErrnoErr returns common boxed Errno values, to prevent
// allocations at runtime.
func ErrnoErr(e syscall.Errno) error {
	switch e {
	case 0:
		return nil
	case syscall.EBADF:
		return errEBADF
	case syscall.EINVAL:
		return errEINVAL
	case syscall.ENOENT:
		return errENOENT
	case syscall.ENOTDIR:
		return errENOTDIR
	case syscall.EISDIR:
		return errEISDIR
	}
	return e
}

// Errno converts a driver error into the single errno taxonomy used above
// this layer. Drivers are expected to return Errno values already; anything
// else is matched against the fs sentinel errors and otherwise reported as
// an I/O error.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	}
	return syscall.EIO
}
