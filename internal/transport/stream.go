package transport

import (
	"bufio"
	"context"
)

// StreamTransport writes each payload into the child's stdin right after
// its metadata line. It owns no resources.
type StreamTransport struct {
	base
}

// NewStream creates a StreamTransport.
func NewStream(cfg Config, opts ...Option) *StreamTransport {
	o := buildOptions(opts)
	return &StreamTransport{base: newBase(ModeStream, cfg, o)}
}

func (t *StreamTransport) Send(ctx context.Context, proc Process, data []byte, meta *Metadata) bool {
	return t.guard(ctx, meta, len(data), func(ctx context.Context) error {
		if proc == nil {
			return ErrChannelClosed
		}
		if proc.Exited() {
			return ErrProcessExited
		}
		if err := t.checkPayload(len(data)); err != nil {
			return err
		}

		m := *meta
		m.complete(ModeStream, data)
		line, err := m.encodeLine()
		if err != nil {
			return err
		}
		err = deliver(ctx, proc, func(w *bufio.Writer) error {
			return writeStreamFrame(w, line, data, aliveCheck(proc))
		})
		if err != nil {
			return err
		}
		*meta = m
		return nil
	})
}

// Cleanup is a no-op.
func (t *StreamTransport) Cleanup(meta *Metadata) {
	if meta != nil {
		t.metrics.Cleanups.WithLabelValues(string(t.mode)).Inc()
	}
}

func (t *StreamTransport) Close() error { return nil }
