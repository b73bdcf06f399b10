package config

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// HostConfig is the root configuration for the snapbridge host.
type HostConfig struct {
	Transport TransportSection `koanf:"transport" yaml:"transport"`
	Child     ChildSection     `koanf:"child" yaml:"child"`
	Metrics   MetricsSection   `koanf:"metrics" yaml:"metrics"`
	Log       LogSection       `koanf:"log" yaml:"log"`
}

// ByteSize is a size written either as a plain byte count or in
// human-readable form ("100MiB", "500 MB").
type ByteSize uint64

func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(humanize.IBytes(uint64(b))), nil
}

// TransportSection configures the snapshot transport.
type TransportSection struct {
	// Mode is one of stream, file or shm.
	Mode    string `koanf:"mode" yaml:"mode"`
	TempDir string `koanf:"temp_dir" yaml:"temp_dir"`

	MaxPayloadSize   ByteSize      `koanf:"max_payload_size" yaml:"max_payload_size"`
	MinFreeDiskSpace ByteSize      `koanf:"min_free_disk_space" yaml:"min_free_disk_space"`
	WriteTimeout     time.Duration `koanf:"write_timeout" yaml:"write_timeout"`

	MaxActiveSegments  int           `koanf:"max_active_segments" yaml:"max_active_segments"`
	EvictionFraction   float64       `koanf:"eviction_fraction" yaml:"eviction_fraction"`
	CleanupGracePeriod time.Duration `koanf:"cleanup_grace_period" yaml:"cleanup_grace_period"`
	MaxPendingCleanup  int           `koanf:"max_pending_cleanup" yaml:"max_pending_cleanup"`

	// ShmStrategy is auto, named or file.
	ShmStrategy string `koanf:"shm_strategy" yaml:"shm_strategy"`
}

// Config converts the section into a transport.Config.
func (s TransportSection) Config() transport.Config {
	return transport.Config{
		Mode:                 transport.Mode(s.Mode),
		TempDir:              s.TempDir,
		MaxPayloadSize:       int64(s.MaxPayloadSize),
		MinFreeDiskSpace:     uint64(s.MinFreeDiskSpace),
		WriteTimeout:         s.WriteTimeout,
		MaxActiveSegments:    s.MaxActiveSegments,
		EvictionFraction:     s.EvictionFraction,
		CleanupGracePeriod:   s.CleanupGracePeriod,
		MaxPendingCleanup:    s.MaxPendingCleanup,
		SharedMemoryStrategy: shm.Kind(s.ShmStrategy),
	}
}

// ChildSection configures the extension process.
type ChildSection struct {
	Command string   `koanf:"command" yaml:"command"`
	Args    []string `koanf:"args" yaml:"args"`
	// Env holds extra KEY=value pairs for the child.
	Env []string `koanf:"env" yaml:"env"`

	// AckTimeout bounds how long a delivered snapshot may stay
	// unacknowledged before it is reclaimed.
	AckTimeout time.Duration `koanf:"ack_timeout" yaml:"ack_timeout"`
	// StopTimeout is how long the child gets to exit after stdin closes.
	StopTimeout time.Duration `koanf:"stop_timeout" yaml:"stop_timeout"`
}

// MetricsSection configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsSection struct {
	Addr string `koanf:"addr" yaml:"addr"`
	Path string `koanf:"path" yaml:"path"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
