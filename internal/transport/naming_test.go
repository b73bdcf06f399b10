package transport

import (
	"strings"
	"sync"
	"testing"
)

func TestSanitizeSession(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"doc-42", "doc-42"},
		{"a/b c", "a_b_c"},
		{"../../etc", "______etc"},
		{"", "anon"},
		{"会话", "__"},
	}
	for _, tt := range tests {
		if got := sanitizeSession(tt.in); got != tt.want {
			t.Errorf("sanitizeSession(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeSession_LongIDsStayDistinct(t *testing.T) {
	a := sanitizeSession(strings.Repeat("x", 100) + "a")
	b := sanitizeSession(strings.Repeat("x", 100) + "b")

	if len(a) > maxSessionLen || len(b) > maxSessionLen {
		t.Errorf("lengths %d, %d exceed %d", len(a), len(b), maxSessionLen)
	}
	if a == b {
		t.Errorf("distinct long ids collapsed to %q", a)
	}
}

func TestSanitizeFormat(t *testing.T) {
	tests := map[string]string{
		"PNG":                        "png",
		".pdf":                       "pdf",
		"":                           "bin",
		"../..":                      "bin",
		"abcdefghijklmnopqrstuvwxyz": "abcdefghijklmnop",
	}
	for in, want := range tests {
		if got := sanitizeFormat(in); got != want {
			t.Errorf("sanitizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSegmentName(t *testing.T) {
	meta := &Metadata{SessionID: "s 1", SequenceNumber: 9, OutputFormat: "svg"}
	if got := segmentName(77, meta, 5); got != "snapbridge_77_s_1_9_5.svg" {
		t.Errorf("segmentName() = %q", got)
	}
	if got := fileName(meta, 5); got != "snap_s_1_9_5.svg" {
		t.Errorf("fileName() = %q", got)
	}
}

func TestAtomicCounter_Unique(t *testing.T) {
	var c AtomicCounter
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 8000 {
		t.Errorf("got %d unique values, want 8000", len(seen))
	}
}
