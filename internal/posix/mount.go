package posix

import "log/slog"

// SysMount attaches the filesystem instance registered under source at
// target. The source must already be a registered, mountable instance; no
// driver instantiation happens here. fstype, flags and data are accepted for
// ABI shape only. Returns 0 on success, -1 on failure.
func (os *OS) SysMount(source, target, fstype string, flags uint64, data []byte) int {
	slog.Debug("sys_mount", "source", source, "target", target, "fstype", fstype)

	if err := os.resolver.Mount(source, target); err != nil {
		slog.Warn("mount failed", "source", source, "target", target, "err", err)
		return -1
	}
	return 0
}

// SysUmount detaches the filesystem mounted at target. Returns 0 on success,
// -1 on failure.
func (os *OS) SysUmount(target string) int {
	slog.Debug("sys_umount", "target", target)

	if err := os.resolver.Unmount(target); err != nil {
		slog.Warn("umount failed", "target", target, "err", err)
		return -1
	}
	return 0
}
