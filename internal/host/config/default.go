package config

import (
	"os"
	"time"

	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// Default configuration values not owned by the transport package.
const (
	DefaultMode         = string(transport.ModeSharedMemory)
	DefaultAckTimeout   = 30 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultMetricsPath  = "/metrics"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultExtensionCmd = "snapbridge-ext"
)

// Default returns the default host configuration.
func Default() *HostConfig {
	return &HostConfig{
		Transport: TransportSection{
			Mode:               DefaultMode,
			TempDir:            os.TempDir(),
			MaxPayloadSize:     ByteSize(transport.DefaultMaxPayloadSize),
			MinFreeDiskSpace:   ByteSize(transport.DefaultMinFreeDiskSpace),
			WriteTimeout:       transport.DefaultWriteTimeout,
			MaxActiveSegments:  transport.DefaultMaxActiveSegments,
			EvictionFraction:   transport.DefaultEvictionFraction,
			CleanupGracePeriod: transport.DefaultCleanupGracePeriod,
			MaxPendingCleanup:  transport.DefaultMaxPendingCleanup,
			ShmStrategy:        string(shm.KindAuto),
		},
		Child: ChildSection{
			Command:     DefaultExtensionCmd,
			AckTimeout:  DefaultAckTimeout,
			StopTimeout: DefaultStopTimeout,
		},
		Metrics: MetricsSection{
			Path: DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
