package vfs

import (
	"log/slog"
	"strings"
	"sync"
	"syscall"

	"github.com/chy669086/arceos/internal/backend"
)

// MountEntry associates a normalized absolute root path with an attached
// driver instance.
type MountEntry struct {
	Root   string
	Driver backend.Driver
}

// Resolver owns the process-wide path state: the current working directory,
// the mount table and the registry of mountable driver instances. It is
// initialized once at kernel start and mutated only by mount, unmount and
// chdir, each under its lock.
type Resolver struct {
	mu       sync.Mutex
	cwd      string
	mounts   []MountEntry
	registry map[string]backend.Driver
}

// NewResolver creates a resolver with root mounted at "/" and the working
// directory set to "/".
func NewResolver(root backend.Driver) *Resolver {
	return &Resolver{
		cwd:      "/",
		mounts:   []MountEntry{{Root: "/", Driver: root}},
		registry: make(map[string]backend.Driver),
	}
}

// Register makes a driver instance mountable under the given source
// identifier. Mount never instantiates drivers itself.
func (r *Resolver) Register(source string, drv backend.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[source] = drv
}

// rootPath normalizes a mount target to an absolute root path. An empty path
// is an error, a leading "./" is stripped, and relative paths are joined
// with the working directory by plain concatenation.
func (r *Resolver) rootPathLocked(path string) (string, error) {
	if path == "" {
		return "", backend.ErrnoErr(syscall.EINVAL)
	}
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	path = strings.TrimPrefix(path, "./")
	if r.cwd == "/" {
		return "/" + path, nil
	}
	return r.cwd + "/" + path, nil
}

// Mount attaches the driver instance registered under source at target.
func (r *Resolver) Mount(source, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drv, ok := r.registry[source]
	if !ok {
		slog.Warn("mount: unknown source filesystem", "source", source)
		return backend.ErrnoErr(syscall.ENOENT)
	}
	root, err := r.rootPathLocked(target)
	if err != nil {
		return err
	}
	for _, m := range r.mounts {
		if m.Root == root {
			return backend.ErrnoErr(syscall.EBUSY)
		}
	}
	r.mounts = append(r.mounts, MountEntry{Root: root, Driver: drv})
	return nil
}

// Unmount detaches the mount at target. The root mount cannot be detached.
func (r *Resolver) Unmount(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	root, err := r.rootPathLocked(target)
	if err != nil {
		return err
	}
	if root == "/" {
		return backend.ErrnoErr(syscall.EINVAL)
	}
	for i, m := range r.mounts {
		if m.Root == root {
			r.mounts = append(r.mounts[:i], r.mounts[i+1:]...)
			return nil
		}
	}
	return backend.ErrnoErr(syscall.EINVAL)
}

// Absolute resolves path against the working directory. Relative paths are
// joined by plain concatenation; dot segments are left for the backend
// walker to interpret.
func (r *Resolver) Absolute(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	path = strings.TrimPrefix(path, "./")
	if r.cwd == "/" {
		return "/" + path
	}
	return r.cwd + "/" + path
}

// Locate finds the mount covering abs (longest root prefix wins) and returns
// its driver together with the path relative to the mount root, which always
// starts with '/'.
func (r *Resolver) Locate(abs string) (backend.Driver, string, error) {
	if !strings.HasPrefix(abs, "/") {
		return nil, "", backend.ErrnoErr(syscall.EINVAL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *MountEntry
	for i := range r.mounts {
		m := &r.mounts[i]
		if m.Root == "/" || abs == m.Root || strings.HasPrefix(abs, m.Root+"/") {
			if best == nil || len(m.Root) > len(best.Root) {
				best = m
			}
		}
	}
	if best == nil {
		return nil, "", backend.ErrnoErr(syscall.ENOENT)
	}
	rel := abs
	if best.Root != "/" {
		rel = strings.TrimPrefix(abs, best.Root)
		if rel == "" {
			rel = "/"
		}
	}
	return best.Driver, rel, nil
}

// Cwd returns the current working directory.
func (r *Resolver) Cwd() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cwd
}

// Chdir updates the working directory after checking that path resolves to a
// directory in some mounted filesystem.
func (r *Resolver) Chdir(path string) error {
	abs := r.Absolute(path)
	drv, rel, err := r.Locate(abs)
	if err != nil {
		return err
	}
	attr, err := drv.GetAttr(rel)
	if err != nil {
		return backend.ErrnoErr(backend.Errno(err))
	}
	if attr.Type != backend.TypeDir {
		return backend.ErrnoErr(syscall.ENOTDIR)
	}

	r.mu.Lock()
	r.cwd = abs
	r.mu.Unlock()
	return nil
}
