package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/yndnr/snapbridge/internal/transport/shm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"too large", fmt.Errorf("%w: 101MiB", ErrPayloadTooLarge), CategoryCapacity},
		{"disk", ErrInsufficientDisk, CategoryCapacity},
		{"no space", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, CategoryCapacity},
		{"exited", ErrProcessExited, CategoryTransient},
		{"closed channel", fmt.Errorf("%w: %w", ErrChannelClosed, io.ErrClosedPipe), CategoryTransient},
		{"timeout", ErrTimeout, CategoryTransient},
		{"cancelled", context.Canceled, CategoryTransient},
		{"mode", ErrUnsupportedMode, CategoryPlatform},
		{"strategy", shm.ErrUnsupported, CategoryPlatform},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, CategoryFilesystem},
		{"vanished", os.ErrNotExist, CategoryFilesystem},
		{"unknown", errors.New("boom"), CategoryInternal},
		{"panic", ErrInternal, CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
