package posix

import (
	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/vfs"
)

// Stat is the metadata snapshot filled by stat, fstat and lstat: backend
// type, permissions, size and block count combined with fixed synthetic
// identity fields and the per-file timestamp overlay.
type Stat struct {
	Ino     uint64
	Nlink   uint32
	Mode    uint32 // type << 12 | permission bits
	Uid     uint32
	Gid     uint32
	Size    int64
	Blksize int32
	Blocks  int64
	Atime   vfs.Timespec
	Mtime   vfs.Timespec
}

func fillStat(attr backend.Attr, atime, mtime vfs.Timespec) Stat {
	return Stat{
		Ino:     1,
		Nlink:   1,
		Mode:    uint32(attr.Type)<<12 | attr.Perm&0o7777,
		Uid:     1000,
		Gid:     1000,
		Size:    int64(attr.Size),
		Blksize: 512,
		Blocks:  int64(attr.Blocks),
		Atime:   atime,
		Mtime:   mtime,
	}
}
