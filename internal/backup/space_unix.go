//go:build linux || darwin || freebsd

package backup

import "golang.org/x/sys/unix"

// freeSpace returns the bytes available to unprivileged users on dir's filesystem.
func freeSpace(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil //nolint:gosec // block counts are non-negative
}
