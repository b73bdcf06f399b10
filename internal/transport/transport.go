package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/snapbridge/internal/infra/diskspace"
	"github.com/yndnr/snapbridge/internal/infra/procinfo"
	"github.com/yndnr/snapbridge/internal/telemetry/metric"
	"github.com/yndnr/snapbridge/internal/transport/orphan"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// Transport moves snapshots to child processes.
type Transport interface {
	Mode() Mode
	// Send hands data to proc and completes meta. It reports whether the
	// child can be expected to read the snapshot.
	Send(ctx context.Context, proc Process, data []byte, meta *Metadata) bool
	// Cleanup releases what Send created for meta. It is safe to call more
	// than once and on metadata that was never sent.
	Cleanup(meta *Metadata)
	// Close releases everything the transport still owns.
	Close() error
}

// New creates the transport selected by cfg.Mode.
func New(cfg Config, opts ...Option) (Transport, error) {
	switch cfg.Mode {
	case ModeStream:
		return NewStream(cfg, opts...), nil
	case ModeFile:
		return NewFile(cfg, opts...)
	case ModeSharedMemory:
		return NewSharedMemory(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Mode)
	}
}

// Option customizes a transport.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	metrics   *metric.Transport
	counter   Counter
	now       func() time.Time
	freeSpace diskspace.Func
	procs     procinfo.Table
	pid       int
	strategy  shm.Strategy
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records sends, cleanups and segment bookkeeping in m.
func WithMetrics(m *metric.Transport) Option {
	return func(o *options) { o.metrics = m }
}

// WithCounter replaces the per-instance name counter.
func WithCounter(c Counter) Option {
	return func(o *options) { o.counter = c }
}

// WithClock replaces time.Now for segment ages.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFreeSpace replaces the free disk space probe.
func WithFreeSpace(fn diskspace.Func) Option {
	return func(o *options) { o.freeSpace = fn }
}

// WithProcessTable replaces the process table used by orphan recovery.
func WithProcessTable(t procinfo.Table) Option {
	return func(o *options) { o.procs = t }
}

// WithPID overrides the process id embedded in directory and segment names.
func WithPID(pid int) Option {
	return func(o *options) { o.pid = pid }
}

// WithStrategy replaces the shared-memory strategy chosen from the config.
func WithStrategy(s shm.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metric.NewTransport(nil)
	}
	if o.counter == nil {
		o.counter = &AtomicCounter{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.freeSpace == nil {
		o.freeSpace = diskspace.Free
	}
	if o.procs == nil {
		o.procs = procinfo.System()
	}
	if o.pid == 0 {
		o.pid = procinfo.Self()
	}
	return o
}

func (o options) sweeper() *orphan.Sweeper {
	return orphan.NewSweeper(
		orphan.WithProcessTable(o.procs),
		orphan.WithSelf(o.pid),
		orphan.WithLogger(o.logger),
		orphan.WithMetrics(o.metrics),
	)
}

// base is shared by the three transports.
type base struct {
	mode    Mode
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Transport
}

func newBase(mode Mode, cfg Config, o options) base {
	cfg.Mode = mode
	cfg.applyDefaults()
	return base{
		mode:    mode,
		cfg:     cfg,
		logger:  o.logger.With("component", "transport", "mode", string(mode)),
		metrics: o.metrics,
	}
}

func (b *base) Mode() Mode { return b.mode }

// guard runs one send under the write timeout and turns every failure,
// panics included, into false plus a log record.
func (b *base) guard(ctx context.Context, meta *Metadata, size int, fn func(ctx context.Context) error) (ok bool) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
		ok = err == nil
		b.report(meta, size, err, time.Since(start))
	}()

	if meta == nil {
		err = ErrNilMetadata
		return
	}
	if b.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.WriteTimeout)
		defer cancel()
	}
	err = fn(ctx)
	return
}

func (b *base) report(meta *Metadata, size int, err error, elapsed time.Duration) {
	category := Classify(err)
	b.metrics.ObserveSend(string(b.mode), err == nil, string(category), size, elapsed)

	attrs := []any{"size", humanize.IBytes(uint64(size)), "elapsed", elapsed}
	if meta != nil {
		attrs = append(attrs, "session_id", meta.SessionID, "sequence", meta.SequenceNumber)
	}
	if err == nil {
		b.logger.Debug("snapshot delivered", append(attrs, "locator", meta.Locator())...)
		return
	}
	attrs = append(attrs, "category", string(category), "error", err)
	if category == CategoryInternal {
		b.logger.Error("snapshot not delivered", attrs...)
		return
	}
	b.logger.Warn("snapshot not delivered", attrs...)
}

// safely runs a cleanup step, logging instead of propagating panics.
func (b *base) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("cleanup fault", "op", op, "panic", r)
		}
	}()
	fn()
}

func (b *base) checkPayload(size int) error {
	if int64(size) > b.cfg.MaxPayloadSize {
		return fmt.Errorf("%w: %s > %s", ErrPayloadTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(b.cfg.MaxPayloadSize)))
	}
	return nil
}

// checkDisk rejects writes that would leave less than MinFreeDiskSpace on
// the volume holding dir. Platforms without a probe skip the check.
func (b *base) checkDisk(free diskspace.Func, dir string, size int) error {
	avail, err := free(dir)
	if errors.Is(err, diskspace.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	need := uint64(size)
	if avail < need || avail-need < b.cfg.MinFreeDiskSpace {
		return fmt.Errorf("%w: %s free, %s requested, %s floor", ErrInsufficientDisk,
			humanize.IBytes(avail), humanize.IBytes(need), humanize.IBytes(b.cfg.MinFreeDiskSpace))
	}
	return nil
}

// removeLeftovers deletes entries of dir starting with prefix. It returns
// how many were removed.
func removeLeftovers(logger *slog.Logger, dir, prefix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove leftover", "path", path, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		logger.Info("removed leftovers", "dir", dir, "count", n)
	}
	return n
}
