// Package memfs is an in-memory backend filesystem driver. It backs the
// default root mount and the test suites; nothing persists.
package memfs

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
)

const rootInode = 1

type fileNode struct {
	inode int
	perm  uint32
	data  []byte
}

type dirNode struct {
	inode   int
	parent  int
	name    string // name in parent
	perm    uint32
	entries map[string]int
}

// FS implements backend.Driver over a map of inode objects.
type FS struct {
	mu      sync.Mutex
	objects map[int]any // *fileNode | *dirNode
	next    int
}

func New() *FS {
	return &FS{
		objects: map[int]any{
			rootInode: &dirNode{
				inode:   rootInode,
				parent:  rootInode,
				perm:    0o755,
				entries: make(map[string]int),
			},
		},
		next: rootInode + 1,
	}
}

func (fs *FS) getDir(inode int) (*dirNode, bool) {
	d, ok := fs.objects[inode].(*dirNode)
	return d, ok
}

// walk resolves all but the last component of path starting at base and
// returns the containing directory's inode plus the final name. An empty
// final name means path named the base directory itself.
func (fs *FS) walk(base int, path string) (inode int, name string, err error) {
	if strings.HasPrefix(path, "/") {
		base = rootInode
	}

	inode = base
	for {
		for strings.HasPrefix(path, "/") {
			path = path[1:]
		}

		next := strings.Index(path, "/")
		if next == -1 {
			name = path
		} else {
			name = path[:next]
		}

		if len(name) == len(path) {
			return inode, name, nil
		}

		dir, ok := fs.getDir(inode)
		if !ok {
			return 0, "", backend.ErrnoErr(syscall.ENOTDIR)
		}

		switch name {
		case "", ".":
		case "..":
			inode = dir.parent
		default:
			entry, ok := dir.entries[name]
			if !ok {
				return 0, "", backend.ErrnoErr(syscall.ENOENT)
			}
			inode = entry
		}

		path = path[len(name):]
	}
}

// lookup resolves the final component inside dir. An empty name or dot names
// the directory itself.
func (fs *FS) lookup(dirInode int, name string) (int, error) {
	dir, ok := fs.getDir(dirInode)
	if !ok {
		return 0, backend.ErrnoErr(syscall.ENOTDIR)
	}
	switch name {
	case "", ".":
		return dirInode, nil
	case "..":
		return dir.parent, nil
	}
	inode, ok := dir.entries[name]
	if !ok {
		return 0, backend.ErrnoErr(syscall.ENOENT)
	}
	return inode, nil
}

func (fs *FS) attrOf(inode int) (backend.Attr, error) {
	switch node := fs.objects[inode].(type) {
	case *dirNode:
		return backend.Attr{Type: backend.TypeDir, Perm: node.perm}, nil
	case *fileNode:
		size := uint64(len(node.data))
		return backend.Attr{
			Type:   backend.TypeRegular,
			Perm:   node.perm,
			Size:   size,
			Blocks: (size + 511) / 512,
		}, nil
	}
	return backend.Attr{}, backend.ErrnoErr(syscall.ENOENT)
}

func (fs *FS) openFile(base int, path string, opts backend.OpenOptions) (backend.FileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walk(base, path)
	if err != nil {
		return nil, err
	}
	dir, ok := fs.getDir(dirInode)
	if !ok {
		return nil, backend.ErrnoErr(syscall.ENOTDIR)
	}
	if name == "" || name == "." || name == ".." {
		return nil, backend.ErrnoErr(syscall.EISDIR)
	}

	inode, exists := dir.entries[name]
	if !exists {
		if !opts.Create {
			return nil, backend.ErrnoErr(syscall.ENOENT)
		}
		inode = fs.next
		fs.next++
		fs.objects[inode] = &fileNode{inode: inode, perm: 0o644}
		dir.entries[name] = inode
	} else {
		if opts.CreateNew {
			return nil, backend.ErrnoErr(syscall.EEXIST)
		}
	}

	node, ok := fs.objects[inode].(*fileNode)
	if !ok {
		return nil, backend.ErrnoErr(syscall.EISDIR)
	}
	if opts.Truncate && opts.Write {
		node.data = nil
	}
	return &fileHandle{fs: fs, node: node}, nil
}

func (fs *FS) openDir(base int, path string, _ backend.OpenOptions) (backend.DirHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walk(base, path)
	if err != nil {
		return nil, err
	}
	inode, err := fs.lookup(dirInode, name)
	if err != nil {
		return nil, err
	}
	node, ok := fs.objects[inode].(*dirNode)
	if !ok {
		return nil, backend.ErrnoErr(syscall.ENOTDIR)
	}
	return &dirHandle{fs: fs, node: node}, nil
}

func (fs *FS) createDir(base int, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walk(base, path)
	if err != nil {
		return err
	}
	dir, ok := fs.getDir(dirInode)
	if !ok {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	if name == "" || name == "." || name == ".." {
		return backend.ErrnoErr(syscall.EEXIST)
	}
	if _, ok := dir.entries[name]; ok {
		return backend.ErrnoErr(syscall.EEXIST)
	}

	inode := fs.next
	fs.next++
	fs.objects[inode] = &dirNode{
		inode:   inode,
		parent:  dirInode,
		name:    name,
		perm:    0o755,
		entries: make(map[string]int),
	}
	dir.entries[name] = inode
	return nil
}

func (fs *FS) remove(base int, path string, removeDir bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walk(base, path)
	if err != nil {
		return err
	}
	dir, ok := fs.getDir(dirInode)
	if !ok {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	inode, ok := dir.entries[name]
	if !ok {
		return backend.ErrnoErr(syscall.ENOENT)
	}

	target, isDir := fs.objects[inode].(*dirNode)
	if !removeDir && isDir {
		return backend.ErrnoErr(syscall.EISDIR)
	}
	if removeDir && !isDir {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	if isDir && len(target.entries) > 0 {
		return backend.ErrnoErr(syscall.ENOTEMPTY)
	}

	delete(dir.entries, name)
	delete(fs.objects, inode)
	return nil
}

// OpenFile implements backend.Driver. Open handles keep the node alive after
// an unlink, matching POSIX.
func (fs *FS) OpenFile(path string, opts backend.OpenOptions) (backend.FileHandle, error) {
	return fs.openFile(rootInode, path, opts)
}

func (fs *FS) OpenDir(path string, opts backend.OpenOptions) (backend.DirHandle, error) {
	return fs.openDir(rootInode, path, opts)
}

func (fs *FS) CreateDir(path string) error {
	return fs.createDir(rootInode, path)
}

func (fs *FS) RemoveFile(path string) error {
	return fs.remove(rootInode, path, false)
}

func (fs *FS) RemoveDir(path string) error {
	return fs.remove(rootInode, path, true)
}

func (fs *FS) Rename(oldPath, newPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fromInode, fromName, err := fs.walk(rootInode, oldPath)
	if err != nil {
		return err
	}
	fromDir, ok := fs.getDir(fromInode)
	if !ok {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	inode, ok := fromDir.entries[fromName]
	if !ok {
		return backend.ErrnoErr(syscall.ENOENT)
	}

	toInode, toName, err := fs.walk(rootInode, newPath)
	if err != nil {
		return err
	}
	toDir, ok := fs.getDir(toInode)
	if !ok {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	if toName == "" || toName == "." || toName == ".." {
		return backend.ErrnoErr(syscall.EINVAL)
	}

	// A directory cannot be moved beneath itself; walk the destination's
	// parent chain up to the root looking for the moved directory.
	if moved, ok := fs.objects[inode].(*dirNode); ok {
		for d := toDir; ; {
			if d == moved {
				return backend.ErrnoErr(syscall.EINVAL)
			}
			if d.inode == rootInode {
				break
			}
			parent, ok := fs.getDir(d.parent)
			if !ok {
				break
			}
			d = parent
		}
	}

	// The destination entry is replaced if present.
	if old, ok := toDir.entries[toName]; ok && old != inode {
		delete(fs.objects, old)
	}
	delete(fromDir.entries, fromName)
	toDir.entries[toName] = inode
	if moved, ok := fs.objects[inode].(*dirNode); ok {
		moved.parent = toDir.inode
		moved.name = toName
	}
	return nil
}

func (fs *FS) GetAttr(path string) (backend.Attr, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirInode, name, err := fs.walk(rootInode, path)
	if err != nil {
		return backend.Attr{}, err
	}
	inode, err := fs.lookup(dirInode, name)
	if err != nil {
		return backend.Attr{}, err
	}
	return fs.attrOf(inode)
}

type fileHandle struct {
	fs   *FS
	node *fileNode
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if off < 0 {
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	if off >= int64(len(h.node.data)) {
		return 0, nil
	}
	return copy(p, h.node.data[off:]), nil
}

func (h *fileHandle) WriteAt(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if off < 0 {
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	end := off + int64(len(p))
	if end > int64(len(h.node.data)) {
		grown := make([]byte, end)
		copy(grown, h.node.data)
		h.node.data = grown
	}
	return copy(h.node.data[off:end], p), nil
}

func (h *fileHandle) Truncate(size int64) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	if size < 0 {
		return backend.ErrnoErr(syscall.EINVAL)
	}
	switch {
	case size <= int64(len(h.node.data)):
		h.node.data = h.node.data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, h.node.data)
		h.node.data = grown
	}
	return nil
}

func (h *fileHandle) Attr() (backend.Attr, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	// Computed from the node itself so the handle stays usable after an
	// unlink.
	size := uint64(len(h.node.data))
	return backend.Attr{
		Type:   backend.TypeRegular,
		Perm:   h.node.perm,
		Size:   size,
		Blocks: (size + 511) / 512,
	}, nil
}

func (h *fileHandle) Sync() error { return nil }

func (h *fileHandle) Close() error { return nil }

type dirHandle struct {
	fs   *FS
	node *dirNode
}

func (h *dirHandle) ReadDir() ([]backend.DirEntry, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	var entries []backend.DirEntry
	for name, inode := range h.node.entries {
		typ := backend.TypeRegular
		if _, ok := h.fs.objects[inode].(*dirNode); ok {
			typ = backend.TypeDir
		}
		entries = append(entries, backend.DirEntry{Name: name, Type: typ})
	}
	slices.SortFunc(entries, func(a, b backend.DirEntry) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return entries, nil
}

func (h *dirHandle) OpenFileAt(path string, opts backend.OpenOptions) (backend.FileHandle, error) {
	return h.fs.openFile(h.node.inode, path, opts)
}

func (h *dirHandle) OpenDirAt(path string, opts backend.OpenOptions) (backend.DirHandle, error) {
	return h.fs.openDir(h.node.inode, path, opts)
}

func (h *dirHandle) CreateDirAt(path string) error {
	return h.fs.createDir(h.node.inode, path)
}

func (h *dirHandle) RemoveAt(path string, removeDir bool) error {
	return h.fs.remove(h.node.inode, path, removeDir)
}

func (h *dirHandle) Attr() (backend.Attr, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return h.fs.attrOf(h.node.inode)
}

func (h *dirHandle) Close() error { return nil }
