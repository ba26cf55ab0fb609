// Package boltfs is a backend filesystem driver persisted in a bbolt
// database file. Nodes are keyed by cleaned absolute path: the "meta" bucket
// holds type and permission bits, the "data" bucket holds file contents.
package boltfs

import (
	"bytes"
	"encoding/binary"
	"path"
	"strings"
	"syscall"

	bolt "go.etcd.io/bbolt"

	"github.com/chy669086/arceos/internal/backend"
)

var (
	bucketMeta = []byte("meta")
	bucketData = []byte("data")
)

type FS struct {
	db *bolt.DB
}

// Open opens or creates the database at dbPath and ensures the root
// directory node exists.
func Open(dbPath string) (*FS, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		if meta.Get([]byte("/")) == nil {
			return meta.Put([]byte("/"), encodeMeta(backend.TypeDir, 0o755))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &FS{db: db}, nil
}

func (fs *FS) Close() error { return fs.db.Close() }

func encodeMeta(typ backend.NodeType, perm uint32) []byte {
	buf := make([]byte, 3)
	buf[0] = byte(typ)
	binary.BigEndian.PutUint16(buf[1:3], uint16(perm))
	return buf
}

func decodeMeta(buf []byte) (backend.NodeType, uint32) {
	return backend.NodeType(buf[0]), uint32(binary.BigEndian.Uint16(buf[1:3]))
}

func norm(p string) string {
	return path.Clean("/" + p)
}

func getMeta(tx *bolt.Tx, p string) (backend.NodeType, uint32, bool) {
	buf := tx.Bucket(bucketMeta).Get([]byte(p))
	if buf == nil {
		return 0, 0, false
	}
	typ, perm := decodeMeta(buf)
	return typ, perm, true
}

// requireDir checks that p exists and is a directory.
func requireDir(tx *bolt.Tx, p string) error {
	typ, _, ok := getMeta(tx, p)
	if !ok {
		return backend.ErrnoErr(syscall.ENOENT)
	}
	if typ != backend.TypeDir {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}
	return nil
}

func childPrefix(p string) string {
	if p == "/" {
		return "/"
	}
	return p + "/"
}

func hasChildren(tx *bolt.Tx, p string) bool {
	prefix := []byte(childPrefix(p))
	c := tx.Bucket(bucketMeta).Cursor()
	k, _ := c.Seek(prefix)
	return k != nil && bytes.HasPrefix(k, prefix)
}

func (fs *FS) OpenFile(p string, opts backend.OpenOptions) (backend.FileHandle, error) {
	p = norm(p)
	err := fs.db.Update(func(tx *bolt.Tx) error {
		typ, _, ok := getMeta(tx, p)
		if ok {
			if typ == backend.TypeDir {
				return backend.ErrnoErr(syscall.EISDIR)
			}
			if opts.CreateNew {
				return backend.ErrnoErr(syscall.EEXIST)
			}
			if opts.Truncate && opts.Write {
				return tx.Bucket(bucketData).Delete([]byte(p))
			}
			return nil
		}
		if !opts.Create {
			return backend.ErrnoErr(syscall.ENOENT)
		}
		if err := requireDir(tx, path.Dir(p)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(p), encodeMeta(backend.TypeRegular, 0o644))
	})
	if err != nil {
		return nil, err
	}
	return &fileHandle{fs: fs, path: p}, nil
}

func (fs *FS) OpenDir(p string, _ backend.OpenOptions) (backend.DirHandle, error) {
	p = norm(p)
	err := fs.db.View(func(tx *bolt.Tx) error {
		return requireDir(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return &dirHandle{fs: fs, path: p}, nil
}

func (fs *FS) CreateDir(p string) error {
	p = norm(p)
	return fs.db.Update(func(tx *bolt.Tx) error {
		if _, _, ok := getMeta(tx, p); ok {
			return backend.ErrnoErr(syscall.EEXIST)
		}
		if err := requireDir(tx, path.Dir(p)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(p), encodeMeta(backend.TypeDir, 0o755))
	})
}

func (fs *FS) remove(p string, removeDir bool) error {
	p = norm(p)
	return fs.db.Update(func(tx *bolt.Tx) error {
		typ, _, ok := getMeta(tx, p)
		if !ok {
			return backend.ErrnoErr(syscall.ENOENT)
		}
		isDir := typ == backend.TypeDir
		if !removeDir && isDir {
			return backend.ErrnoErr(syscall.EISDIR)
		}
		if removeDir && !isDir {
			return backend.ErrnoErr(syscall.ENOTDIR)
		}
		if isDir && hasChildren(tx, p) {
			return backend.ErrnoErr(syscall.ENOTEMPTY)
		}
		if err := tx.Bucket(bucketMeta).Delete([]byte(p)); err != nil {
			return err
		}
		return tx.Bucket(bucketData).Delete([]byte(p))
	})
}

func (fs *FS) RemoveFile(p string) error { return fs.remove(p, false) }

func (fs *FS) RemoveDir(p string) error { return fs.remove(p, true) }

func (fs *FS) Rename(oldPath, newPath string) error {
	oldPath, newPath = norm(oldPath), norm(newPath)
	if oldPath == "/" || newPath == "/" {
		return backend.ErrnoErr(syscall.EINVAL)
	}
	if newPath != oldPath && strings.HasPrefix(newPath, childPrefix(oldPath)) {
		return backend.ErrnoErr(syscall.EINVAL)
	}
	return fs.db.Update(func(tx *bolt.Tx) error {
		meta, data := tx.Bucket(bucketMeta), tx.Bucket(bucketData)

		if _, _, ok := getMeta(tx, oldPath); !ok {
			return backend.ErrnoErr(syscall.ENOENT)
		}
		if newPath == oldPath {
			return nil
		}
		if err := requireDir(tx, path.Dir(newPath)); err != nil {
			return err
		}

		// An existing destination is replaced, so its own keys must go
		// first; a destination directory must be empty.
		if dtyp, _, ok := getMeta(tx, newPath); ok {
			if dtyp == backend.TypeDir && hasChildren(tx, newPath) {
				return backend.ErrnoErr(syscall.ENOTEMPTY)
			}
			if err := meta.Delete([]byte(newPath)); err != nil {
				return err
			}
			if err := data.Delete([]byte(newPath)); err != nil {
				return err
			}
		}

		// Collect the node and, for directories, its whole subtree.
		move := [][]byte{[]byte(oldPath)}
		prefix := []byte(childPrefix(oldPath))
		c := meta.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			move = append(move, append([]byte(nil), k...))
		}

		for _, k := range move {
			dst := newPath + strings.TrimPrefix(string(k), oldPath)
			if v := meta.Get(k); v != nil {
				if err := meta.Put([]byte(dst), append([]byte(nil), v...)); err != nil {
					return err
				}
				if err := meta.Delete(k); err != nil {
					return err
				}
			}
			if v := data.Get(k); v != nil {
				if err := data.Put([]byte(dst), append([]byte(nil), v...)); err != nil {
					return err
				}
				if err := data.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (fs *FS) GetAttr(p string) (backend.Attr, error) {
	p = norm(p)
	var attr backend.Attr
	err := fs.db.View(func(tx *bolt.Tx) error {
		typ, perm, ok := getMeta(tx, p)
		if !ok {
			return backend.ErrnoErr(syscall.ENOENT)
		}
		size := uint64(len(tx.Bucket(bucketData).Get([]byte(p))))
		attr = backend.Attr{Type: typ, Perm: perm, Size: size, Blocks: (size + 511) / 512}
		return nil
	})
	if err != nil {
		return backend.Attr{}, err
	}
	return attr, nil
}

type fileHandle struct {
	fs   *FS
	path string
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	var n int
	err := h.fs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketData).Get([]byte(h.path))
		if off >= int64(len(data)) {
			return nil
		}
		n = copy(p, data[off:])
		return nil
	})
	return n, err
}

func (h *fileHandle) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, backend.ErrnoErr(syscall.EINVAL)
	}
	err := h.fs.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketData)
		old := bucket.Get([]byte(h.path))
		end := off + int64(len(p))
		size := int64(len(old))
		if end > size {
			size = end
		}
		data := make([]byte, size)
		copy(data, old)
		copy(data[off:end], p)
		return bucket.Put([]byte(h.path), data)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *fileHandle) Truncate(size int64) error {
	if size < 0 {
		return backend.ErrnoErr(syscall.EINVAL)
	}
	return h.fs.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketData)
		old := bucket.Get([]byte(h.path))
		data := make([]byte, size)
		copy(data, old)
		return bucket.Put([]byte(h.path), data)
	})
}

func (h *fileHandle) Attr() (backend.Attr, error) {
	return h.fs.GetAttr(h.path)
}

func (h *fileHandle) Sync() error {
	return h.fs.db.Sync()
}

func (h *fileHandle) Close() error { return nil }

type dirHandle struct {
	fs   *FS
	path string
}

func (h *dirHandle) join(p string) string {
	return norm(path.Join(h.path, p))
}

func (h *dirHandle) ReadDir() ([]backend.DirEntry, error) {
	var entries []backend.DirEntry
	prefix := []byte(childPrefix(h.path))
	err := h.fs.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			name := string(k[len(prefix):])
			if strings.Contains(name, "/") {
				continue // grandchild
			}
			typ, _ := decodeMeta(v)
			entries = append(entries, backend.DirEntry{Name: name, Type: typ})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (h *dirHandle) OpenFileAt(p string, opts backend.OpenOptions) (backend.FileHandle, error) {
	return h.fs.OpenFile(h.join(p), opts)
}

func (h *dirHandle) OpenDirAt(p string, opts backend.OpenOptions) (backend.DirHandle, error) {
	return h.fs.OpenDir(h.join(p), opts)
}

func (h *dirHandle) CreateDirAt(p string) error {
	return h.fs.CreateDir(h.join(p))
}

func (h *dirHandle) RemoveAt(p string, removeDir bool) error {
	return h.fs.remove(h.join(p), removeDir)
}

func (h *dirHandle) Attr() (backend.Attr, error) {
	return h.fs.GetAttr(h.path)
}

func (h *dirHandle) Close() error { return nil }
