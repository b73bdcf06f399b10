//go:build unix

package procinfo

import (
	"errors"

	"golang.org/x/sys/unix"
)

// signalProbe sends signal 0, which performs permission and existence
// checks without delivering anything. EPERM means the process exists but
// belongs to someone else.
func signalProbe(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
