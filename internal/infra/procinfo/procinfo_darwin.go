//go:build darwin

package procinfo

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type sysctlTable struct{}

// System returns a Table backed by the kern.proc.pid sysctl.
func System() Table {
	return sysctlTable{}
}

func (sysctlTable) Exists(pid int) bool {
	return signalProbe(pid)
}

func (sysctlTable) StartTime(pid int) (time.Time, error) {
	if pid <= 0 {
		return time.Time{}, ErrNoProcess
	}
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err != nil {
		if !signalProbe(pid) {
			return time.Time{}, ErrNoProcess
		}
		return time.Time{}, fmt.Errorf("procinfo: sysctl pid %d: %w", pid, err)
	}
	if int(kp.Proc.P_pid) != pid {
		return time.Time{}, ErrNoProcess
	}
	tv := kp.Proc.P_starttime
	return time.Unix(int64(tv.Sec), int64(tv.Usec)*int64(time.Microsecond)), nil
}
