//go:build linux || darwin || freebsd

package preflight

import "golang.org/x/sys/unix"

// dirWritable reports whether the process may create files in dir.
func dirWritable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}
