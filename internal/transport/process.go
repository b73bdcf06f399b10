package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Process is the receiving child.
//
// The Locker serializes frames from concurrent Sends to the same child.
// Input is the child's stdin; when it also implements
// SetWriteDeadline(time.Time) error (as *os.File pipes do), a cancelled Send
// interrupts a blocked write instead of abandoning it.
type Process interface {
	sync.Locker
	Pid() int
	Exited() bool
	Input() io.Writer
}

type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

const frameBufferSize = 64 << 10

// deliver runs write against proc's input while holding proc's lock. It
// returns when write finishes or ctx is done, whichever is first.
func deliver(ctx context.Context, proc Process, write func(w *bufio.Writer) error) error {
	if proc == nil {
		return ErrChannelClosed
	}
	if proc.Exited() {
		return ErrProcessExited
	}
	if ctx.Err() != nil {
		return contextError(ctx)
	}
	if err := lockProcess(ctx, proc); err != nil {
		return err
	}

	in := proc.Input()
	if in == nil {
		proc.Unlock()
		return ErrChannelClosed
	}

	done := make(chan error, 1)
	go func() {
		done <- write(bufio.NewWriterSize(in, frameBufferSize))
	}()

	select {
	case err := <-done:
		proc.Unlock()
		return writeError(proc, err)
	case <-ctx.Done():
	}

	if dw, ok := in.(deadlineWriter); ok && dw.SetWriteDeadline(time.Unix(1, 0)) == nil {
		<-done
		_ = dw.SetWriteDeadline(time.Time{})
		proc.Unlock()
	} else {
		go func() {
			<-done
			proc.Unlock()
		}()
	}
	return contextError(ctx)
}

// lockProcess acquires proc's lock unless ctx ends first. A lock acquired
// after ctx ended is released in the background.
func lockProcess(ctx context.Context, proc Process) error {
	locked := make(chan struct{})
	go func() {
		proc.Lock()
		close(locked)
	}()
	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		go func() {
			<-locked
			proc.Unlock()
		}()
		return contextError(ctx)
	}
}

func writeError(proc Process, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProcessExited):
		return err
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case proc.Exited():
		return fmt.Errorf("%w: %w", ErrProcessExited, err)
	case isClosedPipe(err):
		return fmt.Errorf("%w: %w", ErrChannelClosed, err)
	default:
		return err
	}
}

func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// aliveCheck returns the between-steps check used by frame writers.
func aliveCheck(proc Process) func() error {
	return func() error {
		if proc.Exited() {
			return ErrProcessExited
		}
		return nil
	}
}
