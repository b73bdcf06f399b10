package transport

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// Counter hands out unique, increasing numbers for resource names. It also
// orders shared-memory segments for eviction.
type Counter interface {
	Next() uint64
}

// AtomicCounter is a Counter starting at 1.
type AtomicCounter struct {
	n atomic.Uint64
}

func (c *AtomicCounter) Next() uint64 {
	return c.n.Add(1)
}

const (
	maxSessionLen = 40
	maxFormatLen  = 16
)

// sanitizeSession keeps [A-Za-z0-9-] and maps everything else to '_'. Long
// ids are cut and suffixed with a hash of the full id so distinct sessions
// keep distinct names.
func sanitizeSession(id string) string {
	if id == "" {
		return "anon"
	}
	s := strings.Map(func(r rune) rune {
		if isAlnum(r) || r == '-' {
			return r
		}
		return '_'
	}, id)
	if len(s) <= maxSessionLen {
		return s
	}
	return fmt.Sprintf("%s-%08x", s[:maxSessionLen-9], murmur3.Sum32([]byte(id)))
}

// sanitizeFormat lowercases the format and drops anything but letters and
// digits.
func sanitizeFormat(format string) string {
	s := strings.Map(func(r rune) rune {
		if isAlnum(r) {
			return r
		}
		return -1
	}, strings.ToLower(format))
	if s == "" {
		return "bin"
	}
	if len(s) > maxFormatLen {
		s = s[:maxFormatLen]
	}
	return s
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func fileName(meta *Metadata, n uint64) string {
	return fmt.Sprintf("%s%s_%d_%d.%s",
		FilePrefix, sanitizeSession(meta.SessionID), meta.SequenceNumber, n, sanitizeFormat(meta.OutputFormat))
}

func segmentName(pid int, meta *Metadata, n uint64) string {
	return fmt.Sprintf("%s%d_%s_%d_%d.%s",
		SegmentPrefix, pid, sanitizeSession(meta.SessionID), meta.SequenceNumber, n, sanitizeFormat(meta.OutputFormat))
}
