//go:build unix && !linux

package shm

import "os"

func reserve(*os.File, int64) error { return nil }
