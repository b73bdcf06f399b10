package extension

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// Snapshot is one resolved and verified payload.
type Snapshot struct {
	Meta *transport.Metadata
	Data []byte
}

// Handler consumes a snapshot. A returned error is reported in the Ack.
type Handler func(ctx context.Context, snap Snapshot) error

// Receiver runs the extension side of the pipe.
type Receiver struct {
	dec     *transport.Decoder
	acks    *AckWriter
	handle  Handler
	logger  *slog.Logger
	handled int
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverLogger sets the logger. It must not write to the ack stream.
func WithReceiverLogger(l *slog.Logger) ReceiverOption {
	return func(r *Receiver) { r.logger = l }
}

// NewReceiver reads frames from in and writes acks to out. maxPayload
// bounds streamed payloads.
func NewReceiver(in io.Reader, out io.Writer, maxPayload int64, h Handler, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		dec:    transport.NewDecoder(in, maxPayload),
		acks:   NewAckWriter(out),
		handle: h,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run handles frames until the input ends or ctx is done. A frame that
// cannot be decoded ends the run, since the stream position is lost.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta, streamed, err := r.dec.Next()
		if errors.Is(err, io.EOF) {
			r.logger.Info("input closed", "handled", r.handled)
			return nil
		}
		if err != nil {
			return err
		}

		err = r.process(ctx, meta, streamed)
		ack := Ack{SessionID: meta.SessionID, SequenceNumber: meta.SequenceNumber, OK: err == nil}
		if err != nil {
			ack.Error = err.Error()
			r.logger.Warn("snapshot rejected",
				"session_id", meta.SessionID,
				"sequence", meta.SequenceNumber,
				"error", err,
			)
		}
		if werr := r.acks.Write(ack); werr != nil {
			return fmt.Errorf("extension: write ack: %w", werr)
		}
	}
}

func (r *Receiver) process(ctx context.Context, meta *transport.Metadata, streamed []byte) error {
	data, err := Resolve(meta, streamed)
	if err != nil {
		return err
	}
	r.handled++
	r.logger.Debug("snapshot received",
		"session_id", meta.SessionID,
		"sequence", meta.SequenceNumber,
		"mode", string(meta.TransportMode),
		"size", humanize.IBytes(uint64(len(data))),
	)
	if r.handle == nil {
		return nil
	}
	return r.handle(ctx, Snapshot{Meta: meta, Data: data})
}

// Resolve fetches the payload meta points at and verifies it. streamed is
// the payload that followed the metadata line in stream mode.
func Resolve(meta *transport.Metadata, streamed []byte) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch meta.TransportMode {
	case transport.ModeStream:
		data = streamed
	case transport.ModeFile:
		if meta.FilePath == "" {
			return nil, errors.New("extension: file snapshot without filePath")
		}
		data, err = os.ReadFile(meta.FilePath)
	case transport.ModeSharedMemory:
		switch {
		case meta.FilePath != "":
			data, err = shm.Read(meta.FilePath, meta.DataSize)
		case meta.MmapName != "":
			data, err = shm.Read(shm.NamedPath(meta.MmapName), meta.DataSize)
		default:
			return nil, errors.New("extension: shared memory snapshot without locator")
		}
	default:
		return nil, fmt.Errorf("%w: %q", transport.ErrUnsupportedMode, meta.TransportMode)
	}
	if err != nil {
		return nil, fmt.Errorf("extension: resolve %s: %w", meta.Locator(), err)
	}
	if err := meta.Verify(data); err != nil {
		return nil, err
	}
	return data, nil
}
