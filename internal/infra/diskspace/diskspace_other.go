//go:build !(linux || darwin || freebsd)

package diskspace

// Free always returns ErrUnsupported.
func Free(string) (uint64, error) {
	return 0, ErrUnsupported
}
