//go:build unix

package shm

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func fill(ctx context.Context, f *os.File, data []byte) error {
	if err := f.Truncate(int64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := reserve(f, int64(len(data))); err != nil {
		return err
	}
	m, err := unix.Mmap(int(f.Fd()), 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	copyErr := copyInChunks(ctx, m, data)
	if err := unix.Munmap(m); err != nil && copyErr == nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return copyErr
}

// Read maps size bytes of the object at path read-only and returns a copy.
func Read(path string, size int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() != size {
		return nil, fmt.Errorf("shm: %s holds %d bytes, want %d", path, fi.Size(), size)
	}
	if size == 0 {
		return []byte{}, nil
	}
	m, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	defer unix.Munmap(m)
	out := make([]byte, size)
	copy(out, m)
	return out, nil
}
