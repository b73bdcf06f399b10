package config

import (
	"strings"
	"testing"
	"time"

	"github.com/yndnr/snapbridge/internal/transport"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport.Mode != "shm" {
		t.Errorf("Transport.Mode = %q, want shm", cfg.Transport.Mode)
	}
	if cfg.Transport.MaxPayloadSize != 100<<20 {
		t.Errorf("MaxPayloadSize = %d", cfg.Transport.MaxPayloadSize)
	}
	if cfg.Transport.MinFreeDiskSpace != 500<<20 {
		t.Errorf("MinFreeDiskSpace = %d", cfg.Transport.MinFreeDiskSpace)
	}
	if cfg.Transport.CleanupGracePeriod != time.Second || cfg.Transport.EvictionFraction != 0.10 {
		t.Errorf("grace/fraction = %v/%v", cfg.Transport.CleanupGracePeriod, cfg.Transport.EvictionFraction)
	}
	if cfg.Child.AckTimeout != DefaultAckTimeout {
		t.Errorf("Child.AckTimeout = %v", cfg.Child.AckTimeout)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
}

func TestTransportSection_Config(t *testing.T) {
	s := Default().Transport
	s.Mode = "file"
	s.MaxActiveSegments = 12

	cfg := s.Config()
	if cfg.Mode != transport.ModeFile || cfg.MaxActiveSegments != 12 {
		t.Errorf("Config() = %+v", cfg)
	}
	if cfg.MaxPayloadSize != transport.DefaultMaxPayloadSize {
		t.Errorf("MaxPayloadSize = %d", cfg.MaxPayloadSize)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HostConfig)
		want   string
	}{
		{"bad mode", func(c *HostConfig) { c.Transport.Mode = "pipe" }, "unsupported mode"},
		{"zero fraction", func(c *HostConfig) { c.Transport.EvictionFraction = 0 }, "eviction_fraction"},
		{"tiny queue", func(c *HostConfig) { c.Transport.MaxPendingCleanup = 1 }, "max_pending_cleanup"},
		{"bad strategy", func(c *HostConfig) { c.Transport.ShmStrategy = "sysv" }, "strategy"},
		{"env without value", func(c *HostConfig) { c.Child.Env = []string{"PATH"} }, "child.env"},
		{"no ack timeout", func(c *HostConfig) { c.Child.AckTimeout = 0 }, "ack_timeout"},
		{"log format", func(c *HostConfig) { c.Log.Format = "xml" }, "log.format"},
		{"log level", func(c *HostConfig) { c.Log.Level = "chatty" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Verify() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"100MiB", 100 << 20},
		{"500 MB", 500_000_000},
		{"1048576", 1 << 20},
	}
	for _, tt := range tests {
		var b ByteSize
		if err := b.UnmarshalText([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", tt.in, err)
		}
		if b != tt.want {
			t.Errorf("UnmarshalText(%q) = %d, want %d", tt.in, b, tt.want)
		}
	}

	var bad ByteSize
	if err := bad.UnmarshalText([]byte("lots")); err == nil {
		t.Error("UnmarshalText(lots) succeeded")
	}

	text, _ := ByteSize(100 << 20).MarshalText()
	if string(text) != "100 MiB" {
		t.Errorf("MarshalText() = %q", text)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Child.Env = []string{"API_TOKEN=abcdefgh", "LANG=C", "SECRET=xy"}

	sanitized := Sanitize(cfg)

	if cfg.Child.Env[0] != "API_TOKEN=abcdefgh" {
		t.Error("original config should not be modified")
	}
	want := []string{"API_TOKEN=ab****gh", "LANG=C", "SECRET=****"}
	for i := range want {
		if sanitized.Child.Env[i] != want[i] {
			t.Errorf("Env[%d] = %q, want %q", i, sanitized.Child.Env[i], want[i])
		}
	}
}
