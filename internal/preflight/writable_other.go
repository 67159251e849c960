//go:build !(linux || darwin || freebsd)

package preflight

import "os"

// dirWritable creates and removes a temp file in dir.
func dirWritable(dir string) error {
	fh, err := os.CreateTemp(dir, ".splice-check-*")
	if err != nil {
		return err
	}
	name := fh.Name()
	_ = fh.Close()
	return os.Remove(name)
}
