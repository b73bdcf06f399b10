// Package procinfo answers two questions about host processes: does a
// process with a given id exist, and when did it start.
//
// Linux reads /proc through prometheus/procfs and macOS asks the
// kern.proc.pid sysctl. Other Unix systems probe existence with a null
// signal but cannot report start times; Windows can do neither cheaply.
// Callers that need a start time must handle ErrStartTimeUnavailable.
package procinfo

import (
	"errors"
	"os"
	"time"
)

var (
	// ErrNoProcess is returned when no process with the given id exists.
	ErrNoProcess = errors.New("procinfo: no such process")

	// ErrStartTimeUnavailable is returned when the platform cannot report
	// process start times.
	ErrStartTimeUnavailable = errors.New("procinfo: start time unavailable on this platform")
)

// Table looks up processes on the local host.
type Table interface {
	// Exists reports whether a process with the given id is running.
	Exists(pid int) bool
	// StartTime returns the wall-clock time the process started.
	StartTime(pid int) (time.Time, error)
}

// Self returns the current process id.
func Self() int {
	return os.Getpid()
}
