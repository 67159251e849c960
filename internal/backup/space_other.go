//go:build !(linux || darwin || freebsd)

package backup

func freeSpace(string) (uint64, error) {
	return 0, ErrSpaceUnknown
}
