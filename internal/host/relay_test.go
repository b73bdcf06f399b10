package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/snapbridge/internal/extension"
	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// fakePeer runs the child side in-process over two pipes.
type fakePeer struct {
	sync.Mutex
	inR, inW   *os.File
	outR, outW *os.File
	exited     atomic.Bool
	done       chan struct{}
	exitOnce   sync.Once
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	p := &fakePeer{inR: inR, inW: inW, outR: outR, outW: outW, done: make(chan struct{})}
	t.Cleanup(func() {
		p.exit()
		for _, f := range []*os.File{inR, inW, outR} {
			f.Close()
		}
	})
	return p
}

func (p *fakePeer) Pid() int              { return 4242 }
func (p *fakePeer) Exited() bool          { return p.exited.Load() }
func (p *fakePeer) Input() io.Writer      { return p.inW }
func (p *fakePeer) Output() io.Reader     { return p.outR }
func (p *fakePeer) Done() <-chan struct{} { return p.done }

func (p *fakePeer) exit() {
	p.exitOnce.Do(func() {
		p.exited.Store(true)
		p.outW.Close()
		close(p.done)
	})
}

// serve runs a Receiver with h until the host closes stdin.
func (p *fakePeer) serve(h extension.Handler) {
	go func() {
		recv := extension.NewReceiver(p.inR, p.outW, 0, h, extension.WithReceiverLogger(quiet()))
		_ = recv.Run(context.Background())
		p.exit()
	}()
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type noProcs struct{}

func (noProcs) Exists(int) bool                  { return false }
func (noProcs) StartTime(int) (time.Time, error) { return time.Time{}, os.ErrNotExist }

func newTransport(t *testing.T, mode transport.Mode) transport.Transport {
	t.Helper()
	cfg := transport.DefaultConfig(mode)
	cfg.TempDir = t.TempDir()
	cfg.SharedMemoryStrategy = shm.KindFile
	cfg.CleanupGracePeriod = time.Hour
	tr, err := transport.New(cfg,
		transport.WithLogger(quiet()),
		transport.WithProcessTable(noProcs{}),
		transport.WithFreeSpace(func(string) (uint64, error) { return 1 << 40, nil }),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func flush(t *testing.T, r *Relay) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v (pending %d)", err, r.Pending())
	}
}

func TestRelay_AckCleansUpFiles(t *testing.T) {
	tr := newTransport(t, transport.ModeFile)
	peer := newFakePeer(t)
	peer.serve(nil)

	var acks atomic.Int64
	r := NewRelay(tr, peer, WithRelayLogger(quiet()), OnAck(func(extension.Ack) { acks.Add(1) }))
	defer r.Close()

	for i := 0; i < 10; i++ {
		if _, ok := r.Deliver(context.Background(), []byte("page"), "txt"); !ok {
			t.Fatalf("Deliver(%d) = false", i)
		}
	}
	flush(t, r)

	if acked, failed := r.Stats(); acked != 10 || failed != 0 {
		t.Errorf("Stats() = (%d, %d), want (10, 0)", acked, failed)
	}
	if acks.Load() != 10 {
		t.Errorf("OnAck called %d times", acks.Load())
	}
	dir := tr.(*transport.FileTransport).Dir()
	if des, _ := os.ReadDir(dir); len(des) != 0 {
		t.Errorf("%d snapshot files left after acknowledgement", len(des))
	}
}

func TestRelay_AckQueuesSegments(t *testing.T) {
	tr := newTransport(t, transport.ModeSharedMemory)
	peer := newFakePeer(t)
	peer.serve(nil)

	r := NewRelay(tr, peer, WithRelayLogger(quiet()))
	defer r.Close()

	for i := 0; i < 5; i++ {
		if _, ok := r.Deliver(context.Background(), []byte("slide"), "png"); !ok {
			t.Fatalf("Deliver(%d) = false", i)
		}
	}
	flush(t, r)

	st := tr.(*transport.SharedMemoryTransport).Stats()
	if st.Active != 0 || st.Pending != 5 {
		t.Errorf("Stats() = %+v, want 0 active and 5 pending", st)
	}
}

func TestRelay_RejectedSnapshotCountsAsFailed(t *testing.T) {
	tr := newTransport(t, transport.ModeStream)
	peer := newFakePeer(t)
	peer.serve(func(context.Context, extension.Snapshot) error { return errors.New("bad page") })

	r := NewRelay(tr, peer, WithRelayLogger(quiet()))
	defer r.Close()

	if _, ok := r.Deliver(context.Background(), []byte("x"), "txt"); !ok {
		t.Fatal("Deliver() = false")
	}
	flush(t, r)

	if acked, failed := r.Stats(); acked != 0 || failed != 1 {
		t.Errorf("Stats() = (%d, %d), want (0, 1)", acked, failed)
	}
}

func TestRelay_AckTimeoutReclaims(t *testing.T) {
	tr := newTransport(t, transport.ModeFile)
	peer := newFakePeer(t)
	go io.Copy(io.Discard, peer.inR) // reads but never acknowledges

	r := NewRelay(tr, peer, WithRelayLogger(quiet()), WithAckTimeout(50*time.Millisecond))
	defer r.Close()

	if _, ok := r.Deliver(context.Background(), []byte("x"), "txt"); !ok {
		t.Fatal("Deliver() = false")
	}
	flush(t, r)

	if _, failed := r.Stats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	dir := tr.(*transport.FileTransport).Dir()
	if des, _ := os.ReadDir(dir); len(des) != 0 {
		t.Errorf("%d files left after ack timeout", len(des))
	}
}

func TestRelay_ChildExitReclaims(t *testing.T) {
	tr := newTransport(t, transport.ModeFile)
	peer := newFakePeer(t)

	r := NewRelay(tr, peer, WithRelayLogger(quiet()))
	defer r.Close()

	if _, ok := r.Deliver(context.Background(), []byte("x"), "txt"); !ok {
		t.Fatal("Deliver() = false")
	}
	peer.exit()
	flush(t, r)
	r.Wait()

	dir := tr.(*transport.FileTransport).Dir()
	if des, _ := os.ReadDir(dir); len(des) != 0 {
		t.Errorf("%d files left after child exit", len(des))
	}
	if _, ok := r.Deliver(context.Background(), []byte("late"), "txt"); ok {
		t.Error("Deliver() to exited child = true")
	}
}

func TestRelay_SessionID(t *testing.T) {
	peer := newFakePeer(t)
	r := NewRelay(newTransport(t, transport.ModeStream), peer, WithRelayLogger(quiet()), WithSessionID("fixed"))
	defer r.Close()
	if r.SessionID() != "fixed" {
		t.Errorf("SessionID() = %q", r.SessionID())
	}

	generated := NewRelay(newTransport(t, transport.ModeStream), newFakePeer(t), WithRelayLogger(quiet()))
	defer generated.Close()
	if len(generated.SessionID()) != 26 {
		t.Errorf("generated SessionID() = %q, want a ULID", generated.SessionID())
	}
}
