package posix_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/memfs"
	"github.com/chy669086/arceos/internal/posix"
	"github.com/chy669086/arceos/internal/vfs"
)

func newOS(t *testing.T) *posix.OS {
	t.Helper()
	return posix.NewOS(memfs.New())
}

func mustOpen(t *testing.T, os *posix.OS, path string, flags int) int {
	t.Helper()
	fd, err := os.SysOpen(path, flags, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return fd
}

func mustWrite(t *testing.T, os *posix.OS, fd int, data string) {
	t.Helper()
	n, err := os.SysWrite(fd, []byte(data))
	if err != nil || n != len(data) {
		t.Fatalf("write = (%d, %v), want %d bytes", n, err, len(data))
	}
}

func TestOpenReadWrite(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_RDWR)
	if fd != 3 {
		t.Errorf("first open: got fd %d, want 3", fd)
	}
	mustWrite(t, os, fd, "hello")

	if _, err := os.SysLseek(fd, 0, 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	n, err := os.SysRead(fd, buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "hello" {
		t.Errorf("read back: got %q, want %q", got, "hello")
	}
	if _, err := os.SysClose(fd); err != nil {
		t.Fatal(err)
	}
	if _, err := os.SysRead(fd, buf); !errors.Is(err, syscall.EBADF) {
		t.Errorf("read after close: got %v, want EBADF", err)
	}
}

func TestOpenAccessMode(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_WRONLY)
	mustWrite(t, os, fd, "data")
	if _, err := os.SysRead(fd, make([]byte, 4)); !errors.Is(err, syscall.EBADF) {
		t.Errorf("read on write-only fd: got %v, want EBADF", err)
	}

	rfd := mustOpen(t, os, "/f", vfs.O_RDONLY)
	if _, err := os.SysWrite(rfd, []byte("x")); !errors.Is(err, syscall.EBADF) {
		t.Errorf("write on read-only fd: got %v, want EBADF", err)
	}
}

func TestOpenAppend(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_WRONLY)
	mustWrite(t, os, fd, "one")
	os.SysClose(fd)

	fd = mustOpen(t, os, "/f", vfs.O_WRONLY|vfs.O_APPEND)
	mustWrite(t, os, fd, "two")

	rfd := mustOpen(t, os, "/f", vfs.O_RDONLY)
	buf := make([]byte, 16)
	n, err := os.SysRead(rfd, buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "onetwo" {
		t.Errorf("after append: got %q, want %q", got, "onetwo")
	}
}

func TestOpenDirectoryFallback(t *testing.T) {
	os := newOS(t)
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/d", 0o755); err != nil {
		t.Fatal(err)
	}

	// A directory opened without O_DIRECTORY still yields a descriptor, but
	// byte I/O and fstat on it are rejected.
	fd := mustOpen(t, os, "/d", vfs.O_RDONLY)
	if _, err := os.SysRead(fd, make([]byte, 8)); !errors.Is(err, syscall.EBADF) {
		t.Errorf("read on directory fd: got %v, want EBADF", err)
	}
	var st posix.Stat
	if _, err := os.SysFstat(fd, &st); !errors.Is(err, syscall.EBADF) {
		t.Errorf("fstat on directory fd: got %v, want EBADF", err)
	}

	// With O_DIRECTORY the open is strict.
	if _, err := os.SysOpen("/d", vfs.O_RDONLY|vfs.O_DIRECTORY, 0); err != nil {
		t.Errorf("open dir with O_DIRECTORY: %v", err)
	}
	fd2 := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_WRONLY)
	os.SysClose(fd2)
	if _, err := os.SysOpen("/f", vfs.O_RDONLY|vfs.O_DIRECTORY, 0); err == nil {
		t.Error("open file with O_DIRECTORY unexpectedly succeeded")
	}

	if _, err := os.SysOpen("/missing", vfs.O_RDONLY, 0); !errors.Is(err, syscall.ENOENT) {
		t.Errorf("open missing: got %v, want ENOENT", err)
	}
}

func TestLseek(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_RDWR)
	mustWrite(t, os, fd, "0123456789")

	tests := []struct {
		offset int64
		whence int
		want   int64
	}{
		{0, 2, 10}, // end
		{0, 1, 10}, // current after seeking to end
		{2, 0, 2},  // start
		{3, 1, 5},  // current
		{-4, 2, 6}, // back from end
	}
	for _, tt := range tests {
		got, err := os.SysLseek(fd, tt.offset, tt.whence)
		if err != nil {
			t.Fatalf("lseek(%d, %d): %v", tt.offset, tt.whence, err)
		}
		if got != tt.want {
			t.Errorf("lseek(%d, %d) = %d, want %d", tt.offset, tt.whence, got, tt.want)
		}
	}

	if _, err := os.SysLseek(fd, 0, 7); !errors.Is(err, syscall.EINVAL) {
		t.Errorf("bad whence: got %v, want EINVAL", err)
	}
	if _, err := os.SysLseek(fd, -100, 0); !errors.Is(err, syscall.EINVAL) {
		t.Errorf("negative position: got %v, want EINVAL", err)
	}
	if _, err := os.SysLseek(999, 0, 0); !errors.Is(err, syscall.EBADF) {
		t.Errorf("lseek on bad fd: got %v, want EBADF", err)
	}
}

func TestStat(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_WRONLY)
	mustWrite(t, os, fd, "abc")

	var st posix.Stat
	if _, err := os.SysStat("/f", &st); err != nil {
		t.Fatal(err)
	}
	want := posix.Stat{
		Ino:     1,
		Nlink:   1,
		Mode:    uint32(backend.TypeRegular)<<12 | 0o644,
		Uid:     1000,
		Gid:     1000,
		Size:    3,
		Blksize: 512,
		Blocks:  1,
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("stat mismatch (-want +got):\n%s", diff)
	}

	var fst posix.Stat
	if _, err := os.SysFstat(fd, &fst); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, fst); diff != "" {
		t.Errorf("fstat mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.SysStat("/f", nil); !errors.Is(err, syscall.EFAULT) {
		t.Errorf("stat nil buf: got %v, want EFAULT", err)
	}
	if _, err := os.SysFstat(fd, nil); !errors.Is(err, syscall.EFAULT) {
		t.Errorf("fstat nil buf: got %v, want EFAULT", err)
	}

	// The output buffer is untouched when the call fails.
	poison := posix.Stat{Ino: 42}
	if _, err := os.SysStat("/missing", &poison); !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("stat missing: got %v, want ENOENT", err)
	}
	if poison.Ino != 42 {
		t.Error("stat wrote into the buffer on failure")
	}
}

func TestLstat(t *testing.T) {
	os := newOS(t)

	// Symbolic links are not modeled; lstat succeeds with a zeroed snapshot
	// even for paths that do not exist.
	var st posix.Stat
	st.Ino = 7
	if _, err := os.SysLstat("/anything", &st); err != nil {
		t.Fatal(err)
	}
	if st != (posix.Stat{}) {
		t.Errorf("lstat snapshot: got %+v, want zero", st)
	}
	if _, err := os.SysLstat("/anything", nil); !errors.Is(err, syscall.EFAULT) {
		t.Errorf("lstat nil buf: got %v, want EFAULT", err)
	}
}

func TestChdirGetcwd(t *testing.T) {
	os := newOS(t)
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/a", 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := os.SysChdir("/a"); err != nil {
		t.Fatal(err)
	}

	// Exact fit: path plus the NUL terminator.
	buf := make([]byte, 3)
	n, err := os.SysGetcwd(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || string(buf[:2]) != "/a" || buf[2] != 0 {
		t.Errorf("getcwd = (%d, %q)", n, buf)
	}

	if _, err := os.SysGetcwd(make([]byte, 2)); !errors.Is(err, syscall.ERANGE) {
		t.Errorf("getcwd short buf: got %v, want ERANGE", err)
	}
	if _, err := os.SysGetcwd(nil); !errors.Is(err, syscall.EFAULT) {
		t.Errorf("getcwd nil buf: got %v, want EFAULT", err)
	}

	// Relative paths now resolve under the new working directory.
	fd := mustOpen(t, os, "rel", vfs.O_CREAT|vfs.O_WRONLY)
	os.SysClose(fd)
	var st posix.Stat
	if _, err := os.SysStat("/a/rel", &st); err != nil {
		t.Errorf("file created via relative path: %v", err)
	}

	if _, err := os.SysChdir("/a/rel"); !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("chdir to file: got %v, want ENOTDIR", err)
	}
}

func TestOpenat(t *testing.T) {
	os := newOS(t)
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/a", 0o755); err != nil {
		t.Fatal(err)
	}

	dirfd := mustOpen(t, os, "/a", vfs.O_RDONLY|vfs.O_DIRECTORY)

	fd, err := os.SysOpenat(dirfd, "name", vfs.O_CREAT|vfs.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, os, fd, "x")
	os.SysClose(fd)

	var st posix.Stat
	if _, err := os.SysStat("/a/name", &st); err != nil {
		t.Fatalf("dirfd-relative create landed elsewhere: %v", err)
	}
	if st.Size != 1 {
		t.Errorf("size: got %d, want 1", st.Size)
	}

	// An absolute path ignores dirfd entirely, even a bogus one.
	if fd, err := os.SysOpenat(999, "/a/name", vfs.O_RDONLY, 0); err != nil {
		t.Errorf("openat with absolute path: %v", err)
	} else {
		os.SysClose(fd)
	}

	ffd := mustOpen(t, os, "/plain", vfs.O_CREAT|vfs.O_WRONLY)
	if _, err := os.SysOpenat(ffd, "x", vfs.O_RDONLY, 0); !errors.Is(err, syscall.EBADF) {
		t.Errorf("openat with file dirfd: got %v, want EBADF", err)
	}
}

func TestMkdiratUnlinkat(t *testing.T) {
	os := newOS(t)
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/a", 0o755); err != nil {
		t.Fatal(err)
	}
	dirfd := mustOpen(t, os, "/a", vfs.O_RDONLY|vfs.O_DIRECTORY)

	if _, err := os.SysMkdirat(dirfd, "sub", 0o755); err != nil {
		t.Fatal(err)
	}
	var st posix.Stat
	fd := mustOpen(t, os, "/a/sub/f", vfs.O_CREAT|vfs.O_WRONLY)
	os.SysClose(fd)
	if _, err := os.SysStat("/a/sub/f", &st); err != nil {
		t.Fatal(err)
	}

	if _, err := os.SysUnlinkat(dirfd, "sub", posix.AT_REMOVEDIR); !errors.Is(err, syscall.ENOTEMPTY) {
		t.Errorf("rmdir nonempty: got %v, want ENOTEMPTY", err)
	}
	if _, err := os.SysUnlinkat(dirfd, "sub/f", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := os.SysUnlinkat(dirfd, "sub", 0); !errors.Is(err, syscall.EISDIR) {
		t.Errorf("unlink dir without AT_REMOVEDIR: got %v, want EISDIR", err)
	}
	if _, err := os.SysUnlinkat(dirfd, "sub", posix.AT_REMOVEDIR); err != nil {
		t.Fatal(err)
	}
	if _, err := os.SysUnlinkat(posix.AT_FDCWD, "/a", 7); !errors.Is(err, syscall.EINVAL) {
		t.Errorf("unlinkat bad flags: got %v, want EINVAL", err)
	}
}

func TestRename(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/src", vfs.O_CREAT|vfs.O_WRONLY)
	mustWrite(t, os, fd, "payload")
	os.SysClose(fd)

	if _, err := os.SysRename("/src", "/dst"); err != nil {
		t.Fatal(err)
	}
	var st posix.Stat
	if _, err := os.SysStat("/src", &st); !errors.Is(err, syscall.ENOENT) {
		t.Errorf("stat old name: got %v, want ENOENT", err)
	}
	if _, err := os.SysStat("/dst", &st); err != nil {
		t.Fatal(err)
	}
	if st.Size != 7 {
		t.Errorf("renamed size: got %d, want 7", st.Size)
	}

	if _, err := os.SysRename("/missing", "/x"); !errors.Is(err, syscall.ENOENT) {
		t.Errorf("rename missing: got %v, want ENOENT", err)
	}
}

func TestRenameAcrossMounts(t *testing.T) {
	os := newOS(t)
	os.Resolver().Register("extra", memfs.New())
	if rc := os.SysMount("extra", "/mnt", "memfs", 0, nil); rc != 0 {
		t.Fatalf("mount: rc %d", rc)
	}

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_WRONLY)
	os.SysClose(fd)
	if _, err := os.SysRename("/f", "/mnt/f"); !errors.Is(err, syscall.EXDEV) {
		t.Errorf("cross-mount rename: got %v, want EXDEV", err)
	}
}

func TestDescriptorExhaustion(t *testing.T) {
	os := posix.NewOSWithCapacity(memfs.New(), 8)

	var fds []int
	for {
		fd, err := os.SysOpen("/f", vfs.O_CREAT|vfs.O_RDWR, 0o644)
		if err != nil {
			if !errors.Is(err, syscall.EMFILE) {
				t.Fatalf("open: got %v, want EMFILE", err)
			}
			break
		}
		fds = append(fds, fd)
	}
	if len(fds) != 5 {
		t.Errorf("descriptors before exhaustion: got %d, want 5", len(fds))
	}

	if _, err := os.SysClose(fds[1]); err != nil {
		t.Fatal(err)
	}
	fd, err := os.SysOpen("/f", vfs.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if fd != fds[1] {
		t.Errorf("after close: got fd %d, want reused %d", fd, fds[1])
	}
}

func TestFtruncateFsync(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_RDWR)
	mustWrite(t, os, fd, "0123456789")
	if _, err := os.SysFtruncate(fd, 4); err != nil {
		t.Fatal(err)
	}
	var st posix.Stat
	if _, err := os.SysFstat(fd, &st); err != nil {
		t.Fatal(err)
	}
	if st.Size != 4 {
		t.Errorf("size after ftruncate: got %d, want 4", st.Size)
	}
	if _, err := os.SysFsync(fd); err != nil {
		t.Errorf("fsync: %v", err)
	}
	if _, err := os.SysFsync(0); !errors.Is(err, syscall.EBADF) {
		t.Errorf("fsync on stdio: got %v, want EBADF", err)
	}
}

func TestReadFileAt(t *testing.T) {
	os := newOS(t)

	fd := mustOpen(t, os, "/f", vfs.O_CREAT|vfs.O_RDWR)
	mustWrite(t, os, fd, "0123456789")

	got, err := os.ReadFileAt(fd, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "456" {
		t.Errorf("ReadFileAt(4, 3): got %q, want %q", got, "456")
	}

	// Size is clamped to what remains.
	got, err = os.ReadFileAt(fd, 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "89" {
		t.Errorf("ReadFileAt(8, 100): got %q, want %q", got, "89")
	}

	if _, err := os.ReadFileAt(fd, 10, 1); !errors.Is(err, syscall.EINVAL) {
		t.Errorf("offset at end: got %v, want EINVAL", err)
	}

	// The cursor is unaffected.
	if pos, err := os.SysLseek(fd, 0, 1); err != nil || pos != 10 {
		t.Errorf("cursor after ReadFileAt = (%d, %v), want 10", pos, err)
	}
}

func TestReadDirEntries(t *testing.T) {
	os := newOS(t)
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/d", 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"/d/b", "/d/a"} {
		fd := mustOpen(t, os, name, vfs.O_CREAT|vfs.O_WRONLY)
		os.SysClose(fd)
	}
	if _, err := os.SysMkdirat(posix.AT_FDCWD, "/d/sub", 0o755); err != nil {
		t.Fatal(err)
	}

	dirfd := mustOpen(t, os, "/d", vfs.O_RDONLY|vfs.O_DIRECTORY)
	entries, err := os.ReadDirEntries(dirfd)
	if err != nil {
		t.Fatal(err)
	}
	want := []backend.DirEntry{
		{Name: "a", Type: backend.TypeRegular},
		{Name: "b", Type: backend.TypeRegular},
		{Name: "sub", Type: backend.TypeDir},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	ffd := mustOpen(t, os, "/plain", vfs.O_CREAT|vfs.O_WRONLY)
	if _, err := os.ReadDirEntries(ffd); !errors.Is(err, syscall.EBADF) {
		t.Errorf("ReadDirEntries on file fd: got %v, want EBADF", err)
	}
}

func TestStdio(t *testing.T) {
	os := newOS(t)

	// Writes to the standard descriptors land in the log and report full
	// length; reads report end of input.
	n, err := os.SysWrite(1, []byte("console line\n"))
	if err != nil || n != 13 {
		t.Errorf("write to stdout = (%d, %v)", n, err)
	}
	if n, err := os.SysRead(0, make([]byte, 8)); n != 0 || err != nil {
		t.Errorf("read from stdin = (%d, %v), want (0, nil)", n, err)
	}
	var st posix.Stat
	if _, err := os.SysFstat(2, &st); err != nil {
		t.Fatal(err)
	}
	if st.Mode != uint32(backend.TypeCharDevice)<<12|0o620 {
		t.Errorf("stderr mode: got %#o", st.Mode)
	}
	if _, err := os.SysClose(1); !errors.Is(err, syscall.EBADF) {
		t.Errorf("close stdout: got %v, want EBADF", err)
	}
}

func TestErrnoResult(t *testing.T) {
	if got := posix.ErrnoResult(7, nil); got != 7 {
		t.Errorf("success: got %d, want 7", got)
	}
	if got := posix.ErrnoResult(0, backend.ErrnoErr(syscall.ENOENT)); got != -int(syscall.ENOENT) {
		t.Errorf("failure: got %d, want %d", got, -int(syscall.ENOENT))
	}
}
