//go:build !linux

package orphan

import (
	"io/fs"
	"time"
)

func createdAt(_ string, fi fs.FileInfo) time.Time {
	return fi.ModTime()
}
