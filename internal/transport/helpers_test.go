package transport

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type frame struct {
	meta    *Metadata
	payload []byte
}

// pipeProc is a Process whose input is an os.Pipe.
type pipeProc struct {
	sync.Mutex
	pid    int
	exited atomic.Bool
	r, w   *os.File
}

func (p *pipeProc) Pid() int         { return p.pid }
func (p *pipeProc) Exited() bool     { return p.exited.Load() }
func (p *pipeProc) Input() io.Writer { return p.w }
func (p *pipeProc) exit()            { p.exited.Store(true) }

// newPipeProc returns a child stand-in. When read is true, a goroutine
// decodes every frame written to it onto the returned channel.
func newPipeProc(t *testing.T, read bool) (*pipeProc, <-chan frame) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	p := &pipeProc{pid: 4242, r: r, w: w}
	t.Cleanup(func() {
		w.Close()
		r.Close()
	})

	frames := make(chan frame, 4096)
	if read {
		go func() {
			defer close(frames)
			dec := NewDecoder(r, 0)
			for {
				meta, payload, err := dec.Next()
				if err != nil {
					return
				}
				frames <- frame{meta: meta, payload: payload}
			}
		}()
	}
	return p, frames
}

func nextFrame(t *testing.T, frames <-chan frame) frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatal("child input closed before a frame arrived")
		}
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return frame{}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeSpace(n uint64) func(string) (uint64, error) {
	return func(string) (uint64, error) { return n, nil }
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// noProcs is a process table in which no other process exists.
type noProcs struct{}

func (noProcs) Exists(int) bool { return false }
func (noProcs) StartTime(int) (time.Time, error) {
	return time.Time{}, os.ErrNotExist
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i>>8)
	}
	return b
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	names := make([]string, 0, len(des))
	for _, d := range des {
		names = append(names, d.Name())
	}
	return names
}
