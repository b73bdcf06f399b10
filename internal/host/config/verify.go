package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/snapbridge/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *HostConfig) error {
	return errors.Join(
		verifyTransport(&cfg.Transport),
		verifyChild(&cfg.Child),
		verifyLog(&cfg.Log),
	)
}

func verifyTransport(cfg *TransportSection) error {
	if err := cfg.Config().Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if cfg.EvictionFraction == 0 {
		return errors.New("transport.eviction_fraction must be greater than 0")
	}
	if cfg.MaxActiveSegments < 1 {
		return errors.New("transport.max_active_segments must be at least 1")
	}
	if cfg.MaxPendingCleanup < 2 {
		return errors.New("transport.max_pending_cleanup must be at least 2")
	}
	if cfg.WriteTimeout < 0 || cfg.CleanupGracePeriod <= 0 {
		return errors.New("transport.write_timeout and transport.cleanup_grace_period must be positive")
	}
	return nil
}

func verifyChild(cfg *ChildSection) error {
	for _, kv := range cfg.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("child.env entry %q is not KEY=value", kv)
		}
	}
	if cfg.AckTimeout <= 0 {
		return errors.New("child.ack_timeout must be positive")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
}
