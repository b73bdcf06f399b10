package confloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type size uint64

func (s *size) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "1k":
		*s = 1024
	default:
		*s = size(len(text))
	}
	return nil
}

type testConfig struct {
	Transport struct {
		Mode           string        `koanf:"mode"`
		MaxPayloadSize size          `koanf:"max_payload_size"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
	} `koanf:"transport"`
	Child struct {
		Command string   `koanf:"command"`
		Args    []string `koanf:"args"`
	} `koanf:"child"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/snapbridge.yaml"))

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want TEST_", l.envPrefix)
	}
	if l.filePath != "/etc/snapbridge.yaml" {
		t.Errorf("filePath = %q", l.filePath)
	}
	if NewLoader().envPrefix != DefaultEnvPrefix {
		t.Error("default env prefix not applied")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
transport:
  mode: file
  max_payload_size: 1k
  write_timeout: 5s
child:
  command: /usr/bin/ext
  args: ["-v", "--out", "/tmp"]
`)
	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport.Mode != "file" {
		t.Errorf("Mode = %q, want file", cfg.Transport.Mode)
	}
	if cfg.Transport.MaxPayloadSize != 1024 {
		t.Errorf("MaxPayloadSize = %d, want 1024", cfg.Transport.MaxPayloadSize)
	}
	if cfg.Transport.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.Transport.WriteTimeout)
	}
	if len(cfg.Child.Args) != 3 || cfg.Child.Args[1] != "--out" {
		t.Errorf("Args = %v", cfg.Child.Args)
	}
}

func TestLoader_LoadFile_Missing(t *testing.T) {
	var cfg testConfig
	err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))).Load(&cfg)
	if err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}

func TestLoader_KeepsExistingValues(t *testing.T) {
	path := writeConfig(t, "transport:\n  mode: stream\n")

	var cfg testConfig
	cfg.Child.Command = "default-ext"
	cfg.Transport.WriteTimeout = time.Minute
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport.Mode != "stream" {
		t.Errorf("Mode = %q, want stream", cfg.Transport.Mode)
	}
	if cfg.Child.Command != "default-ext" || cfg.Transport.WriteTimeout != time.Minute {
		t.Errorf("defaults overwritten: %+v", cfg)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "transport:\n  mode: file\n  write_timeout: 5s\n")
	t.Setenv("SNAPTEST_TRANSPORT_MODE", "shm")
	t.Setenv("SNAPTEST_TRANSPORT_WRITE_TIMEOUT", "250ms")
	t.Setenv("SNAPTEST_CHILD_COMMAND", "/opt/ext")

	var cfg testConfig
	if err := NewLoader(WithEnvPrefix("SNAPTEST_"), WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport.Mode != "shm" {
		t.Errorf("Mode = %q, want shm", cfg.Transport.Mode)
	}
	if cfg.Transport.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v, want 250ms", cfg.Transport.WriteTimeout)
	}
	if cfg.Child.Command != "/opt/ext" {
		t.Errorf("Command = %q", cfg.Child.Command)
	}
}

func TestLoader_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SNAPTEST_TRANSPORT_MODE", "shm")

	var cfg testConfig
	l := NewLoader(
		WithEnvPrefix("SNAPTEST_"),
		WithFlags(map[string]any{"transport.mode": "stream", "child.command": "x"}),
	)
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport.Mode != "stream" || cfg.Child.Command != "x" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if l.Get("transport.mode") != "stream" {
		t.Errorf("Get(transport.mode) = %v", l.Get("transport.mode"))
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"SNAPBRIDGE_TRANSPORT_MODE", "transport.mode"},
		{"SNAPBRIDGE_TRANSPORT_MAX_PAYLOAD_SIZE", "transport.max_payload_size"},
		{"SNAPBRIDGE_CHILD_ACK_TIMEOUT", "child.ack_timeout"},
		{"SNAPBRIDGE_LOG", "log"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	if _, err := mapProvider(nil).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v", err)
	}
}
