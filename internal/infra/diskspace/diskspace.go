// Package diskspace reports free space on the volume holding a path.
package diskspace

import "errors"

// ErrUnsupported is returned on platforms without a free-space probe.
var ErrUnsupported = errors.New("diskspace: not supported on this platform")

// Func reports the bytes available to unprivileged writers on the volume
// holding path. Components accept a Func so tests can substitute a fixed
// answer.
type Func func(path string) (uint64, error)
