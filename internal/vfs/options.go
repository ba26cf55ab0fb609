package vfs

import "github.com/chy669086/arceos/internal/backend"

// Open flag values follow the generic Linux ABI (riscv64/arm64 layout), not
// the host's, since this is the kernel's own ABI surface.
const (
	O_RDONLY = 0o0
	O_WRONLY = 0o1
	O_RDWR   = 0o2

	O_CREAT     = 0o100
	O_TRUNC     = 0o1000
	O_APPEND    = 0o2000
	O_DIRECTORY = 0o40000
	O_EXEC      = 0o10000000

	accModeMask = 0o3
)

// FlagsToOptions translates POSIX open flags into a backend options value.
// The mode argument is accepted for ABI shape only. Unrecognized flag bits
// are ignored so that callers built against a newer ABI still work.
func FlagsToOptions(flags int, _ uint32) backend.OpenOptions {
	var opts backend.OpenOptions
	switch flags & accModeMask {
	case O_RDONLY:
		opts.Read = true
	case O_WRONLY:
		opts.Write = true
	default:
		opts.Read = true
		opts.Write = true
	}
	if flags&O_APPEND != 0 {
		opts.Append = true
	}
	if flags&O_TRUNC != 0 {
		opts.Truncate = true
	}
	if flags&O_CREAT != 0 {
		opts.Create = true
	}
	if flags&O_EXEC != 0 {
		opts.CreateNew = true
	}
	if flags&O_DIRECTORY != 0 {
		opts.Directory = true
	}
	return opts
}
