// Package backend defines the contract between the VFS layer and concrete
// filesystem drivers. A driver exposes separate typed entry points for files
// and directories; the VFS above reconciles them into a single POSIX-shaped
// namespace.
package backend

// NodeType is the file type as it appears in the high bits of a POSIX mode
// word (mode >> 12).
type NodeType uint8

const (
	TypeFifo       NodeType = 0o1
	TypeCharDevice NodeType = 0o2
	TypeDir        NodeType = 0o4
	TypeBlockDev   NodeType = 0o6
	TypeRegular    NodeType = 0o10
	TypeSymlink    NodeType = 0o12
	TypeSocket     NodeType = 0o14
)

// OpenOptions is the backend-neutral translation of POSIX open flags. It is
// built once per open call and cloned when an open is retried as a directory.
type OpenOptions struct {
	Read      bool
	Write     bool
	Append    bool
	Truncate  bool
	Create    bool
	CreateNew bool
	Directory bool
	Execute   bool
}

// Attr is backend-reported node metadata. Identity fields (inode, owner) are
// synthesized above this layer.
type Attr struct {
	Type   NodeType
	Perm   uint32 // low 12 mode bits
	Size   uint64
	Blocks uint64
}

type DirEntry struct {
	Name string
	Type NodeType
}

// Driver is a mounted (or mountable) filesystem instance. Paths passed to a
// driver are absolute within the mount, starting with '/'.
type Driver interface {
	OpenFile(path string, opts OpenOptions) (FileHandle, error)
	OpenDir(path string, opts OpenOptions) (DirHandle, error)
	CreateDir(path string) error
	RemoveFile(path string) error
	RemoveDir(path string) error
	Rename(oldPath, newPath string) error
	GetAttr(path string) (Attr, error)
}

// FileHandle is an open regular file. Handles are not safe for concurrent use;
// the VFS serializes access through the owning file object's lock.
type FileHandle interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Attr() (Attr, error)
	Sync() error
	Close() error
}

// DirHandle is an open directory. The *At operations resolve names relative
// to this directory, anchoring openat-style calls.
type DirHandle interface {
	ReadDir() ([]DirEntry, error)
	OpenFileAt(path string, opts OpenOptions) (FileHandle, error)
	OpenDirAt(path string, opts OpenOptions) (DirHandle, error)
	CreateDirAt(path string) error
	RemoveAt(path string, removeDir bool) error
	Attr() (Attr, error)
	Close() error
}
