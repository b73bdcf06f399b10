// Package orphan removes transport leftovers of host processes that are no
// longer running.
//
// Every directory and shared-memory object a transport creates embeds the
// creating process id in its name. An entry is an orphan when that process
// is gone, or when the id now belongs to a process that started after the
// entry was created (the id was recycled). A failed start time lookup makes
// the entry an orphan. A platform that cannot report start times at all
// leaves entries of live processes alone.
package orphan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/yndnr/snapbridge/internal/infra/procinfo"
	"github.com/yndnr/snapbridge/internal/telemetry/metric"
)

// IsOrphaned reports whether an entry created at createdAt by pid may be
// removed.
func IsOrphaned(pid int, createdAt time.Time, procs procinfo.Table) bool {
	if !procs.Exists(pid) {
		return true
	}
	started, err := procs.StartTime(pid)
	if errors.Is(err, procinfo.ErrStartTimeUnavailable) {
		return false
	}
	if err != nil {
		return true
	}
	return started.After(createdAt)
}

// ParsePID extracts the process id from "<prefix><pid>" or
// "<prefix><pid>_<anything>".
func ParsePID(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	digits, _, _ := strings.Cut(rest, "_")
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	pid, err := strconv.Atoi(digits)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Report summarizes one Sweep.
type Report struct {
	Scanned int
	Removed []string
	Errors  []error
}

// Err joins the removal errors.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// Sweeper removes orphaned entries from a directory.
type Sweeper struct {
	procs   procinfo.Table
	self    int
	logger  *slog.Logger
	metrics *metric.Transport
	warn    *rate.Limiter
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithProcessTable replaces the system process table.
func WithProcessTable(t procinfo.Table) Option {
	return func(s *Sweeper) { s.procs = t }
}

// WithSelf sets the process id whose entries are never touched.
func WithSelf(pid int) Option {
	return func(s *Sweeper) { s.self = pid }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithMetrics records removals in m.
func WithMetrics(m *metric.Transport) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper creates a Sweeper for the current process.
func NewSweeper(opts ...Option) *Sweeper {
	s := &Sweeper{
		self: procinfo.Self(),
		warn: rate.NewLimiter(rate.Every(time.Minute), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.procs == nil {
		s.procs = procinfo.System()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "orphan")
	return s
}

// Sweep removes every orphaned entry of dir whose name starts with prefix.
// A missing dir is not an error.
func (s *Sweeper) Sweep(dir, prefix string) Report {
	var rep Report
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rep.Errors = append(rep.Errors, fmt.Errorf("orphan: list %s: %w", dir, err))
		}
		return rep
	}

	for _, e := range entries {
		pid, ok := ParsePID(e.Name(), prefix)
		if !ok || pid == s.self {
			continue
		}
		rep.Scanned++

		path := filepath.Join(dir, e.Name())
		fi, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				rep.Errors = append(rep.Errors, err)
			}
			continue
		}
		created := createdAt(path, fi)
		if !IsOrphaned(pid, created, s.procs) {
			continue
		}

		size := entrySize(path, fi)
		if err := os.RemoveAll(path); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("orphan: remove %s: %w", path, err))
			if s.warn.Allow() {
				s.logger.Warn("failed to remove orphan", "path", path, "pid", pid, "error", err)
			}
			continue
		}
		rep.Removed = append(rep.Removed, path)
		if s.metrics != nil {
			s.metrics.OrphansRemoved.WithLabelValues(prefix).Inc()
		}
		s.logger.Info("removed orphan",
			"path", path,
			"pid", pid,
			"created", created,
			"size", humanize.IBytes(size),
		)
	}
	return rep
}

// entrySize is the size of a file, or the summed size of a directory's
// regular files.
func entrySize(path string, fi fs.FileInfo) uint64 {
	if !fi.IsDir() {
		return uint64(fi.Size())
	}
	var total uint64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
