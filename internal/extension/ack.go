package extension

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Ack is the line an extension writes back for each snapshot.
type Ack struct {
	SessionID      string `json:"sessionId"`
	SequenceNumber int64  `json:"sequenceNumber"`
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
}

// AckWriter writes Ack lines; it is safe for concurrent use.
type AckWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewAckWriter(w io.Writer) *AckWriter {
	return &AckWriter{w: bufio.NewWriter(w)}
}

func (a *AckWriter) Write(ack Ack) error {
	b, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return a.w.Flush()
}

// AckReader reads Ack lines.
type AckReader struct {
	s *bufio.Scanner
}

func NewAckReader(r io.Reader) *AckReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &AckReader{s: s}
}

// Next returns the next Ack, or io.EOF when the stream ends.
func (a *AckReader) Next() (Ack, error) {
	for a.s.Scan() {
		line := a.s.Bytes()
		if len(line) == 0 {
			continue
		}
		var ack Ack
		if err := json.Unmarshal(line, &ack); err != nil {
			return Ack{}, fmt.Errorf("extension: decode ack %q: %w", line, err)
		}
		return ack, nil
	}
	if err := a.s.Err(); err != nil {
		return Ack{}, err
	}
	return Ack{}, io.EOF
}
