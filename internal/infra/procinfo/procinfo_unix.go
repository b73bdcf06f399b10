//go:build unix && !linux && !darwin

package procinfo

import "time"

type signalTable struct{}

// System returns a Table that probes processes with a null signal.
func System() Table {
	return signalTable{}
}

func (signalTable) Exists(pid int) bool {
	return signalProbe(pid)
}

func (signalTable) StartTime(pid int) (time.Time, error) {
	if !signalProbe(pid) {
		return time.Time{}, ErrNoProcess
	}
	return time.Time{}, ErrStartTimeUnavailable
}
