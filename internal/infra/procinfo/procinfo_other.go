//go:build !unix

package procinfo

import (
	"os"
	"time"
)

type findTable struct{}

// System returns a Table built on os.FindProcess.
func System() Table {
	return findTable{}
}

func (findTable) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

func (findTable) StartTime(int) (time.Time, error) {
	return time.Time{}, ErrStartTimeUnavailable
}
