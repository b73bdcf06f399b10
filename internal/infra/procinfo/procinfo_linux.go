//go:build linux

package procinfo

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/prometheus/procfs"
)

type procfsTable struct {
	fs  procfs.FS
	err error
}

// System returns the Table backed by /proc.
func System() Table {
	pfs, err := procfs.NewDefaultFS()
	return &procfsTable{fs: pfs, err: err}
}

func (t *procfsTable) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if t.err != nil {
		return signalProbe(pid)
	}
	_, err := t.fs.Proc(pid)
	return err == nil
}

func (t *procfsTable) StartTime(pid int) (time.Time, error) {
	if t.err != nil {
		return time.Time{}, fmt.Errorf("procinfo: open /proc: %w", t.err)
	}
	p, err := t.fs.Proc(pid)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNoProcess
		}
		return time.Time{}, fmt.Errorf("procinfo: lookup pid %d: %w", pid, err)
	}
	stat, err := p.Stat()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNoProcess
		}
		return time.Time{}, fmt.Errorf("procinfo: stat pid %d: %w", pid, err)
	}
	secs, err := stat.StartTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("procinfo: start time pid %d: %w", pid, err)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), nil
}
