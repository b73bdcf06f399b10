//go:build !unix

package shm

import (
	"context"
	"fmt"
	"os"
)

func fill(ctx context.Context, f *os.File, data []byte) error {
	for off := 0; off < len(data); off += copyChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+copyChunk, len(data))
		if _, err := f.WriteAt(data[off:end], int64(off)); err != nil {
			return err
		}
	}
	return nil
}

// Read returns the size bytes stored at path.
func Read(path string, size int64) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("shm: %s holds %d bytes, want %d", path, len(data), size)
	}
	return data, nil
}
