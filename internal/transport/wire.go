package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// lengthSize is the width of the little-endian payload length that follows
// the metadata line in stream mode.
const lengthSize = 8

// maxLineSize bounds a metadata line read by a Decoder.
const maxLineSize = 64 << 10

var ErrFrameTooLarge = errors.New("transport: frame exceeds limit")

// Decoder reads what the transports write to a child's input: one metadata
// line per snapshot, followed by a length and the payload in stream mode.
type Decoder struct {
	r          *bufio.Reader
	maxPayload int64
}

// NewDecoder returns a Decoder over r. Streamed payloads larger than
// maxPayload are rejected; a non-positive maxPayload means DefaultMaxPayloadSize.
func NewDecoder(r io.Reader, maxPayload int64) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &Decoder{r: bufio.NewReaderSize(r, 64<<10), maxPayload: maxPayload}
}

// Next returns the next metadata record and, in stream mode, its payload.
// It returns io.EOF when the input ends between frames.
func (d *Decoder) Next() (*Metadata, []byte, error) {
	line, err := d.readLine()
	if err != nil {
		return nil, nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(line, &meta); err != nil {
		return nil, nil, fmt.Errorf("transport: decode metadata: %w", err)
	}
	if meta.TransportMode != ModeStream {
		return &meta, nil, nil
	}

	var hdr [lengthSize]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, nil, fmt.Errorf("transport: read payload length: %w", unexpected(err))
	}
	n := binary.LittleEndian.Uint64(hdr[:])
	if n > uint64(d.maxPayload) {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, nil, fmt.Errorf("transport: read payload: %w", unexpected(err))
	}
	return &meta, payload, nil
}

func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("%w: metadata line", ErrFrameTooLarge)
		}
		switch {
		case err == nil:
			return line[:len(line)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// writeStreamFrame writes the metadata line, the payload length and the
// payload, flushing after the line and at the end. alive is consulted
// between steps.
func writeStreamFrame(w *bufio.Writer, line, payload []byte, alive func() error) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := alive(); err != nil {
		return err
	}
	var hdr [lengthSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if err := alive(); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

// writeLine writes one metadata line and flushes it.
func writeLine(w *bufio.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	return w.Flush()
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
