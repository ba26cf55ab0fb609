// Axsh is a small interactive shell over the POSIX syscall surface, useful
// for poking at mounted filesystems by hand.
//
// Usage: axsh [-bolt file.db]
//
// With -bolt, a bbolt-backed filesystem is opened from the given database
// file, registered under the source id "boltfs" and mounted at /data.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/chy669086/arceos/internal/backend"
	"github.com/chy669086/arceos/internal/boltfs"
	"github.com/chy669086/arceos/internal/klog"
	"github.com/chy669086/arceos/internal/memfs"
	"github.com/chy669086/arceos/internal/posix"
	"github.com/chy669086/arceos/internal/vfs"
)

var boltPath = flag.String("bolt", "", "bbolt database file to mount at /data")

func main() {
	flag.Parse()
	klog.Setup()

	kern := posix.NewOS(memfs.New())

	if *boltPath != "" {
		bfs, err := boltfs.Open(*boltPath)
		if err != nil {
			log.Fatalf("open bolt database: %v", err)
		}
		defer bfs.Close()
		kern.Resolver().Register("boltfs", bfs)
		if _, err := kern.SysMkdirat(posix.AT_FDCWD, "/data", 0o755); err != nil {
			log.Fatalf("mkdir /data: %v", err)
		}
		if rc := kern.SysMount("boltfs", "/data", "boltfs", 0, nil); rc != 0 {
			log.Fatalf("mount /data failed")
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("axsh> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			break
		}
		if err := run(kern, args); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		}
	}
}

func run(kern *posix.OS, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Println("commands: ls cat write touch stat mkdir rm rmdir mv cd pwd mount umount exit")
		return nil

	case "pwd":
		buf := make([]byte, 256)
		n, err := kern.SysGetcwd(buf)
		if err != nil {
			return err
		}
		fmt.Println(string(buf[:n-1]))
		return nil

	case "cd":
		if len(args) != 1 {
			return fmt.Errorf("usage: cd <path>")
		}
		_, err := kern.SysChdir(args[0])
		return err

	case "ls":
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		fd, err := kern.SysOpen(path, vfs.O_DIRECTORY, 0)
		if err != nil {
			return err
		}
		defer kern.SysClose(fd)
		entries, err := kern.ReadDirEntries(fd)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name
			if e.Type == backend.TypeDir {
				name += "/"
			}
			fmt.Println(name)
		}
		return nil

	case "cat":
		if len(args) != 1 {
			return fmt.Errorf("usage: cat <path>")
		}
		fd, err := kern.SysOpen(args[0], vfs.O_RDONLY, 0)
		if err != nil {
			return err
		}
		defer kern.SysClose(fd)
		buf := make([]byte, 4096)
		for {
			n, err := kern.SysRead(fd, buf)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			os.Stdout.Write(buf[:n])
		}

	case "write":
		if len(args) < 2 {
			return fmt.Errorf("usage: write <path> <text...>")
		}
		fd, err := kern.SysOpen(args[0], vfs.O_WRONLY|vfs.O_CREAT|vfs.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer kern.SysClose(fd)
		_, err = kern.SysWrite(fd, []byte(strings.Join(args[1:], " ")+"\n"))
		return err

	case "touch":
		if len(args) != 1 {
			return fmt.Errorf("usage: touch <path>")
		}
		fd, err := kern.SysOpen(args[0], vfs.O_RDONLY|vfs.O_CREAT, 0o644)
		if err != nil {
			return err
		}
		defer kern.SysClose(fd)
		_, err = kern.SysUtimensat(fd, "", nil, 0)
		return err

	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("usage: stat <path>")
		}
		var st posix.Stat
		if _, err := kern.SysStat(args[0], &st); err != nil {
			return err
		}
		fmt.Printf("mode %06o size %d blocks %d uid %d gid %d\n",
			st.Mode, st.Size, st.Blocks, st.Uid, st.Gid)
		return nil

	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: mkdir <path>")
		}
		_, err := kern.SysMkdirat(posix.AT_FDCWD, args[0], 0o755)
		return err

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <path>")
		}
		_, err := kern.SysUnlinkat(posix.AT_FDCWD, args[0], 0)
		return err

	case "rmdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: rmdir <path>")
		}
		_, err := kern.SysUnlinkat(posix.AT_FDCWD, args[0], posix.AT_REMOVEDIR)
		return err

	case "mv":
		if len(args) != 2 {
			return fmt.Errorf("usage: mv <old> <new>")
		}
		_, err := kern.SysRename(args[0], args[1])
		return err

	case "mount":
		if len(args) != 2 {
			return fmt.Errorf("usage: mount <source> <target>")
		}
		if rc := kern.SysMount(args[0], args[1], "", 0, nil); rc != 0 {
			return fmt.Errorf("mount failed")
		}
		return nil

	case "umount":
		if len(args) != 1 {
			return fmt.Errorf("usage: umount <target>")
		}
		if rc := kern.SysUmount(args[0]); rc != 0 {
			return fmt.Errorf("umount failed")
		}
		return nil
	}
	return fmt.Errorf("unknown command (try help)")
}
