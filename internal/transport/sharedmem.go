package transport

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/snapbridge/internal/infra/diskspace"
	"github.com/yndnr/snapbridge/internal/transport/orphan"
	"github.com/yndnr/snapbridge/internal/transport/shm"
	"github.com/yndnr/snapbridge/pkg/cmap"
)

type segmentEntry struct {
	seg     *shm.Segment
	created time.Time
	order   uint64
}

// SharedMemoryTransport copies each payload into a shared-memory segment
// and sends the segment name.
//
// Segments stay in the active table until Cleanup or eviction moves them to
// the delayed-cleanup queue. A background sweep disposes queued segments
// once they have waited longer than CleanupGracePeriod.
type SharedMemoryTransport struct {
	base
	strategy  shm.Strategy
	pid       int
	counter   Counter
	now       func() time.Time
	freeSpace diskspace.Func

	active  *cmap.Map[string, *segmentEntry]
	evictMu sync.Mutex
	queue   *cleanupQueue

	overflowWarn *rate.Limiter

	// life is held shared by Send and Cleanup and exclusively by Close
	// while it flips closed, so no segment is published after the drain.
	life      sync.RWMutex
	closed    atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSharedMemory picks the segment strategy, clears leftovers and orphans,
// and starts the cleanup sweep.
func NewSharedMemory(cfg Config, opts ...Option) (*SharedMemoryTransport, error) {
	o := buildOptions(opts)
	t := &SharedMemoryTransport{
		base:         newBase(ModeSharedMemory, cfg, o),
		pid:          o.pid,
		counter:      o.counter,
		now:          o.now,
		freeSpace:    o.freeSpace,
		active:       cmap.New[string, *segmentEntry](),
		overflowWarn: rate.NewLimiter(rate.Every(10*time.Second), 1),
		stopCh:       make(chan struct{}),
	}
	t.queue = newCleanupQueue(t.cfg.MaxPendingCleanup, t.now)

	t.strategy = o.strategy
	if t.strategy == nil {
		dir := filepath.Join(t.cfg.TempDir, ShmDirPrefix+strconv.Itoa(o.pid))
		s, err := shm.New(t.cfg.SharedMemoryStrategy, dir)
		if err != nil {
			return nil, fmt.Errorf("transport: shared memory strategy: %w", err)
		}
		t.strategy = s
	}

	sweeper := o.sweeper()
	switch t.strategy.Kind() {
	case shm.KindFile:
		if err := os.MkdirAll(t.strategy.Dir(), 0o700); err != nil {
			return nil, fmt.Errorf("transport: create %s: %w", t.strategy.Dir(), err)
		}
		removeLeftovers(t.logger, t.strategy.Dir(), SegmentPrefix)
	case shm.KindNamed:
		removeLeftovers(t.logger, t.strategy.Dir(), SegmentPrefix+strconv.Itoa(o.pid)+"_")
		t.logSweep(sweeper.Sweep(t.strategy.Dir(), SegmentPrefix), t.strategy.Dir())
	}
	t.logSweep(sweeper.Sweep(t.cfg.TempDir, ShmDirPrefix), t.cfg.TempDir)

	t.logger.Info("shared memory transport ready",
		"strategy", string(t.strategy.Kind()),
		"dir", t.strategy.Dir(),
		"max_active", t.cfg.MaxActiveSegments,
		"grace", t.cfg.CleanupGracePeriod,
	)

	t.wg.Add(1)
	go t.sweepLoop()
	return t, nil
}

func (t *SharedMemoryTransport) logSweep(rep orphan.Report, dir string) {
	if err := rep.Err(); err != nil {
		t.logger.Warn("orphan sweep incomplete", "dir", dir, "error", err)
	}
}

// Strategy returns the segment strategy in use.
func (t *SharedMemoryTransport) Strategy() shm.Strategy { return t.strategy }

func (t *SharedMemoryTransport) Send(ctx context.Context, proc Process, data []byte, meta *Metadata) bool {
	return t.guard(ctx, meta, len(data), func(ctx context.Context) error {
		t.life.RLock()
		defer t.life.RUnlock()
		if t.closed.Load() {
			return ErrClosed
		}
		if proc == nil {
			return ErrChannelClosed
		}
		if proc.Exited() {
			return ErrProcessExited
		}
		if err := t.checkPayload(len(data)); err != nil {
			return err
		}
		if t.strategy.Kind() == shm.KindFile {
			if err := t.checkDisk(t.freeSpace, t.strategy.Dir(), len(data)); err != nil {
				return err
			}
		}

		t.ensureCapacity()

		m := *meta
		m.complete(ModeSharedMemory, data)
		order := t.counter.Next()
		seg, err := t.strategy.Create(ctx, segmentName(t.pid, &m, order), data)
		if err != nil {
			if isExhausted(err) {
				return fmt.Errorf("%w: %w", ErrCapacity, err)
			}
			return err
		}
		m.MmapName = seg.Name
		m.FilePath = seg.BackingFile()

		// Publish before the child can see the name, so an acknowledgement
		// racing with this Send finds the entry.
		t.active.Set(seg.Name, &segmentEntry{seg: seg, created: t.now(), order: order})
		t.updateGauges()

		line, err := m.encodeLine()
		if err == nil {
			err = deliver(ctx, proc, func(w *bufio.Writer) error {
				return writeLine(w, line)
			})
		}
		if err != nil {
			if e, ok := t.active.Pop(seg.Name); ok {
				t.dispose(seg.Name, e)
				t.updateGauges()
			}
			return err
		}
		*meta = m
		return nil
	})
}

// Cleanup moves the segment named by meta to the delayed-cleanup queue.
func (t *SharedMemoryTransport) Cleanup(meta *Metadata) {
	if meta == nil || meta.MmapName == "" {
		return
	}
	t.safely("shm cleanup", func() {
		t.life.RLock()
		defer t.life.RUnlock()
		e, ok := t.active.Pop(meta.MmapName)
		if !ok {
			return
		}
		t.metrics.Cleanups.WithLabelValues(string(t.mode)).Inc()
		if t.closed.Load() {
			t.dispose(meta.MmapName, e)
		} else {
			t.release(meta.MmapName, e)
		}
		t.updateGauges()
	})
}

// ensureCapacity evicts the oldest entries once the active table is full.
func (t *SharedMemoryTransport) ensureCapacity() {
	limit := t.cfg.MaxActiveSegments
	if t.active.Count() < limit {
		return
	}

	t.evictMu.Lock()
	defer t.evictMu.Unlock()

	n := t.active.Count()
	if n < limit {
		return
	}
	want := min(evictionCount(limit, t.cfg.EvictionFraction), n)

	entries := t.active.Entries()
	slices.SortFunc(entries, byOrder)

	evicted := 0
	for _, e := range entries {
		if evicted == want {
			break
		}
		if v, ok := t.active.Pop(e.Key); ok {
			t.release(e.Key, v)
			evicted++
		}
	}
	t.metrics.Evictions.Add(float64(evicted))
	t.updateGauges()
	t.logger.Info("evicted shared memory segments", "count", evicted, "active", n, "max", limit)
}

func byOrder(a, b cmap.Entry[string, *segmentEntry]) int {
	return cmp.Compare(a.Value.order, b.Value.order)
}

// evictionCount is ceil(limit*fraction), at least 1.
func evictionCount(limit int, fraction float64) int {
	n := int(math.Ceil(float64(limit)*fraction - 1e-9))
	return max(n, 1)
}

// release queues e for disposal after the grace period and force-disposes
// whatever overflows the queue.
func (t *SharedMemoryTransport) release(name string, e *segmentEntry) {
	forced := t.queue.push(name, e)
	if len(forced) == 0 {
		return
	}
	if t.overflowWarn.Allow() {
		t.logger.Warn("cleanup queue overflow, disposing segments early",
			"forced", len(forced),
			"limit", t.cfg.MaxPendingCleanup,
		)
	}
	t.metrics.ForcedDisposals.Add(float64(len(forced)))
	for _, p := range forced {
		t.dispose(p.name, p.entry)
	}
}

func (t *SharedMemoryTransport) dispose(name string, e *segmentEntry) {
	if err := e.seg.Dispose(); err != nil {
		t.metrics.DisposeErrors.Inc()
		t.logger.Warn("failed to dispose segment", "name", name, "error", err)
	}
}

func (t *SharedMemoryTransport) sweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.CleanupGracePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep disposes queued segments older than the grace period.
func (t *SharedMemoryTransport) sweep() {
	t.safely("shm sweep", func() {
		for _, p := range t.queue.expired(t.cfg.CleanupGracePeriod) {
			t.dispose(p.name, p.entry)
		}
		t.updateGauges()
	})
}

func (t *SharedMemoryTransport) updateGauges() {
	t.metrics.ActiveSegments.Set(float64(t.active.Count()))
	t.metrics.PendingCleanup.Set(float64(t.queue.size()))
}

// Stats is a point-in-time view of the segment bookkeeping.
type Stats struct {
	Active  int
	Pending int
}

func (t *SharedMemoryTransport) Stats() Stats {
	return Stats{Active: t.active.Count(), Pending: t.queue.size()}
}

// Close stops the sweep and disposes every queued and active segment, then
// removes the file-backed directory.
func (t *SharedMemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		t.life.Lock()
		t.closed.Store(true)
		t.life.Unlock()
		close(t.stopCh)
		t.wg.Wait()

		var errs []error
		for _, p := range t.queue.drain() {
			if err := p.entry.seg.Dispose(); err != nil {
				errs = append(errs, err)
			}
		}
		active := t.active.Drain()
		slices.SortFunc(active, byOrder)
		for _, e := range active {
			if err := e.Value.seg.Dispose(); err != nil {
				errs = append(errs, err)
			}
		}
		if t.strategy.Kind() == shm.KindFile {
			if err := os.RemoveAll(t.strategy.Dir()); err != nil {
				errs = append(errs, err)
			}
		}
		t.updateGauges()
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}
