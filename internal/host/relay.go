// Package host pairs a snapshot transport with one extension process.
package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/snapbridge/internal/extension"
	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/pkg/cmap"
)

// Peer is the child side a Relay talks to.
type Peer interface {
	transport.Process
	Output() io.Reader
	Done() <-chan struct{}
}

// DefaultAckTimeout is how long a snapshot may stay unacknowledged before
// its resources are reclaimed anyway.
const DefaultAckTimeout = 30 * time.Second

type pending struct {
	meta   *transport.Metadata
	sentAt time.Time
	// ready is closed when Send has returned and meta is final.
	ready chan struct{}
}

// Relay sends snapshots to one child and cleans up each one when the child
// acknowledges it, exits, or stays silent past the ack timeout.
type Relay struct {
	tr         transport.Transport
	peer       Peer
	session    string
	seq        atomic.Int64
	ackTimeout time.Duration
	logger     *slog.Logger
	onAck      func(extension.Ack)

	pending *cmap.Map[int64, pending]
	changed chan struct{}

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	acked  atomic.Int64
	failed atomic.Int64
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(d time.Duration) RelayOption {
	return func(r *Relay) { r.ackTimeout = d }
}

// WithSessionID replaces the generated session id.
func WithSessionID(id string) RelayOption {
	return func(r *Relay) { r.session = id }
}

// WithRelayLogger sets the logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// OnAck registers fn to run for every acknowledgement received.
func OnAck(fn func(extension.Ack)) RelayOption {
	return func(r *Relay) { r.onAck = fn }
}

// NewRelay starts reading acknowledgements from peer.
func NewRelay(tr transport.Transport, peer Peer, opts ...RelayOption) *Relay {
	r := &Relay{
		tr:         tr,
		peer:       peer,
		session:    ulid.Make().String(),
		ackTimeout: DefaultAckTimeout,
		logger:     slog.Default(),
		pending:    cmap.New[int64, pending](),
		changed:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("session_id", r.session, "child_pid", peer.Pid())

	r.wg.Add(2)
	go r.readAcks()
	go r.expireLoop()
	return r
}

// SessionID returns the id stamped on every snapshot of this relay.
func (r *Relay) SessionID() string { return r.session }

// Deliver sends data as the next snapshot. It returns the sequence number
// used and whether the child can be expected to read it.
func (r *Relay) Deliver(ctx context.Context, data []byte, format string) (int64, bool) {
	seq := r.seq.Add(1)
	meta := &transport.Metadata{SessionID: r.session, SequenceNumber: seq, OutputFormat: format}

	// Registered first: the ack can arrive before Send returns.
	p := pending{meta: meta, sentAt: time.Now(), ready: make(chan struct{})}
	r.pending.Set(seq, p)
	ok := r.tr.Send(ctx, r.peer, data, meta)
	close(p.ready)
	if !ok {
		if _, mine := r.pending.Pop(seq); mine {
			r.failed.Add(1)
			r.notify()
		}
		return seq, false
	}
	return seq, true
}

// Pending returns how many delivered snapshots await acknowledgement.
func (r *Relay) Pending() int { return r.pending.Count() }

// Stats reports acknowledged and failed snapshots so far.
func (r *Relay) Stats() (acked, failed int64) {
	return r.acked.Load(), r.failed.Load()
}

// Flush waits until every delivered snapshot has been acknowledged or
// reclaimed.
func (r *Relay) Flush(ctx context.Context) error {
	for r.pending.Count() > 0 {
		select {
		case <-r.changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the background work and cleans up whatever is still pending.
// It does not stop the child.
func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.reclaimAll("relay closed")
}

// Wait blocks until the ack reader has finished, which happens once the
// child closes its stdout.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) readAcks() {
	defer r.wg.Done()
	defer func() {
		r.stopOnce.Do(func() { close(r.stopCh) })
		r.reclaimAll("child output closed")
	}()

	acks := extension.NewAckReader(r.peer.Output())
	for {
		ack, err := acks.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.logger.Warn("ack stream failed", "error", err)
			}
			return
		}
		r.handleAck(ack)
	}
}

func (r *Relay) handleAck(ack extension.Ack) {
	if ack.SessionID != r.session {
		r.logger.Warn("ack for foreign session", "ack_session", ack.SessionID, "sequence", ack.SequenceNumber)
		return
	}
	p, ok := r.pending.Pop(ack.SequenceNumber)
	if !ok {
		return
	}
	r.cleanup(p)
	if ack.OK {
		r.acked.Add(1)
	} else {
		r.failed.Add(1)
		r.logger.Warn("child rejected snapshot", "sequence", ack.SequenceNumber, "error", ack.Error)
	}
	if r.onAck != nil {
		r.onAck(ack)
	}
	r.notify()
}

// expireLoop reclaims snapshots the child has not acknowledged in time, and
// everything pending once the child exits.
func (r *Relay) expireLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(max(r.ackTimeout/2, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.peer.Done():
			r.reclaimAll("child exited")
			return
		case now := <-ticker.C:
			r.expire(now)
		}
	}
}

func (r *Relay) expire(now time.Time) {
	for _, e := range r.pending.Entries() {
		if now.Sub(e.Value.sentAt) < r.ackTimeout {
			continue
		}
		if p, ok := r.pending.Pop(e.Key); ok {
			r.logger.Warn("snapshot not acknowledged in time", "sequence", e.Key, "timeout", r.ackTimeout)
			r.cleanup(p)
			r.failed.Add(1)
			r.notify()
		}
	}
}

func (r *Relay) reclaimAll(reason string) {
	drained := r.pending.Drain()
	for _, e := range drained {
		r.cleanup(e.Value)
		r.failed.Add(1)
	}
	if len(drained) > 0 {
		r.logger.Info("reclaimed unacknowledged snapshots", "count", len(drained), "reason", reason)
	}
	r.notify()
}

func (r *Relay) cleanup(p pending) {
	<-p.ready
	r.tr.Cleanup(p.meta)
}

func (r *Relay) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
