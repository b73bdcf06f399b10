//go:build linux

package shm

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// reserve allocates the pages up front so a full tmpfs fails here with
// ENOSPC instead of raising SIGBUS while the mapping is written.
func reserve(f *os.File, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return nil
	}
	return err
}
