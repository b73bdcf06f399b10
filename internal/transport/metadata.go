package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// Mode names a transport backend.
type Mode string

const (
	ModeStream       Mode = "stream"
	ModeFile         Mode = "file"
	ModeSharedMemory Mode = "shm"
)

// ParseMode converts a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeStream, ModeFile, ModeSharedMemory:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// Metadata describes one snapshot hand-off. The caller fills SessionID,
// SequenceNumber and OutputFormat; Send fills the rest on success.
type Metadata struct {
	SessionID      string `json:"sessionId"`
	SequenceNumber int64  `json:"sequenceNumber"`
	OutputFormat   string `json:"outputFormat"`
	TransportMode  Mode   `json:"transportMode"`
	DataSize       int64  `json:"dataSize"`
	Checksum       uint32 `json:"checksum"`
	FilePath       string `json:"filePath,omitempty"`
	MmapName       string `json:"mmapName,omitempty"`
}

var (
	ErrChecksumMismatch = errors.New("transport: checksum mismatch")
	ErrSizeMismatch     = errors.New("transport: size mismatch")
)

// Checksum is the CRC32 (IEEE) written to Metadata.Checksum.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Locator returns what the child needs to find the payload: the segment
// name for shared memory, the file path for file hand-offs and "" for
// streamed payloads.
func (m *Metadata) Locator() string {
	if m.MmapName != "" {
		return m.MmapName
	}
	return m.FilePath
}

// Verify checks data against DataSize and Checksum.
func (m *Metadata) Verify(data []byte) error {
	if int64(len(data)) != m.DataSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), m.DataSize)
	}
	if sum := Checksum(data); sum != m.Checksum {
		return fmt.Errorf("%w: got %08x, want %08x", ErrChecksumMismatch, sum, m.Checksum)
	}
	return nil
}

// complete fills the transport-owned fields and clears any stale locator.
func (m *Metadata) complete(mode Mode, data []byte) {
	m.TransportMode = mode
	m.DataSize = int64(len(data))
	m.Checksum = Checksum(data)
	m.FilePath = ""
	m.MmapName = ""
}

// encodeLine renders m as one newline-terminated JSON line.
func (m *Metadata) encodeLine() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("transport: encode metadata: %w", err)
	}
	return append(b, '\n'), nil
}
