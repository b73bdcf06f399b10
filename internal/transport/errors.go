package transport

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/yndnr/snapbridge/internal/transport/shm"
)

var (
	// Capacity.
	ErrPayloadTooLarge  = errors.New("transport: payload exceeds size cap")
	ErrInsufficientDisk = errors.New("transport: insufficient free disk space")
	ErrCapacity         = errors.New("transport: segment resources exhausted")

	// Transient I/O.
	ErrProcessExited = errors.New("transport: child process has exited")
	ErrChannelClosed = errors.New("transport: child input channel closed")
	ErrTimeout       = errors.New("transport: write timed out")
	ErrClosed        = errors.New("transport: transport closed")

	// Platform and configuration.
	ErrUnsupportedMode = errors.New("transport: unsupported mode")

	ErrNilMetadata = errors.New("transport: nil metadata")
	ErrInternal    = errors.New("transport: internal fault")
)

// Category groups send failures for logs and metrics.
type Category string

const (
	CategoryCapacity   Category = "capacity"
	CategoryTransient  Category = "transient"
	CategoryFilesystem Category = "filesystem"
	CategoryPlatform   Category = "platform"
	CategoryInternal   Category = "internal"
)

// Classify maps a send error to its category. nil maps to "".
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrInsufficientDisk),
		errors.Is(err, ErrCapacity),
		isExhausted(err):
		return CategoryCapacity
	case errors.Is(err, ErrProcessExited),
		errors.Is(err, ErrChannelClosed),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	case errors.Is(err, ErrUnsupportedMode),
		errors.Is(err, shm.ErrUnsupported):
		return CategoryPlatform
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrExist) {
		return CategoryFilesystem
	}
	return CategoryInternal
}

// isExhausted reports out-of-space and out-of-descriptor conditions.
func isExhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}

// isClosedPipe reports write errors caused by the reader going away.
func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
