package transport

import (
	"fmt"
	"os"
	"time"

	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// Defaults for Config.
const (
	DefaultMaxPayloadSize     int64  = 100 << 20
	DefaultMinFreeDiskSpace   uint64 = 500 << 20
	DefaultWriteTimeout              = 30 * time.Second
	DefaultMaxActiveSegments         = 256
	DefaultEvictionFraction          = 0.10
	DefaultCleanupGracePeriod        = time.Second
	DefaultMaxPendingCleanup         = 1024
)

// Names of the filesystem state owned by a transport. Directories carry the
// owning process id directly after their prefix so orphan recovery can key
// off it.
const (
	FileDirPrefix = "snapbridge-files-"
	ShmDirPrefix  = "snapbridge-shm-"
	SegmentPrefix = "snapbridge_"
	FilePrefix    = "snap_"
)

// Config configures a transport.
type Config struct {
	Mode Mode

	// TempDir holds the process-scoped directories. Defaults to os.TempDir().
	TempDir string

	MaxPayloadSize   int64
	MinFreeDiskSpace uint64
	// WriteTimeout bounds one Send, on top of the caller's context.
	WriteTimeout time.Duration

	MaxActiveSegments  int
	EvictionFraction   float64
	CleanupGracePeriod time.Duration
	MaxPendingCleanup  int

	SharedMemoryStrategy shm.Kind
}

// DefaultConfig returns the default configuration for mode.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:                 mode,
		TempDir:              os.TempDir(),
		MaxPayloadSize:       DefaultMaxPayloadSize,
		MinFreeDiskSpace:     DefaultMinFreeDiskSpace,
		WriteTimeout:         DefaultWriteTimeout,
		MaxActiveSegments:    DefaultMaxActiveSegments,
		EvictionFraction:     DefaultEvictionFraction,
		CleanupGracePeriod:   DefaultCleanupGracePeriod,
		MaxPendingCleanup:    DefaultMaxPendingCleanup,
		SharedMemoryStrategy: shm.KindAuto,
	}
}

func (c *Config) applyDefaults() {
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxActiveSegments <= 0 {
		c.MaxActiveSegments = DefaultMaxActiveSegments
	}
	if c.EvictionFraction <= 0 || c.EvictionFraction > 1 {
		c.EvictionFraction = DefaultEvictionFraction
	}
	if c.CleanupGracePeriod <= 0 {
		c.CleanupGracePeriod = DefaultCleanupGracePeriod
	}
	if c.MaxPendingCleanup <= 0 {
		c.MaxPendingCleanup = DefaultMaxPendingCleanup
	}
	if c.SharedMemoryStrategy == "" {
		c.SharedMemoryStrategy = shm.KindAuto
	}
}

// Validate reports configuration values that defaults cannot repair.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.EvictionFraction < 0 || c.EvictionFraction > 1 {
		return fmt.Errorf("transport: eviction fraction %v outside (0, 1]", c.EvictionFraction)
	}
	if c.MaxPayloadSize < 0 {
		return fmt.Errorf("transport: negative max payload size %d", c.MaxPayloadSize)
	}
	switch c.SharedMemoryStrategy {
	case "", shm.KindAuto, shm.KindNamed, shm.KindFile:
	default:
		return fmt.Errorf("%w: shared memory strategy %q", ErrUnsupportedMode, c.SharedMemoryStrategy)
	}
	return nil
}
