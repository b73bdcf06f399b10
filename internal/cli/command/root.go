package command

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/cli/output"
	"github.com/yndnr/snapbridge/internal/host/config"
	"github.com/yndnr/snapbridge/internal/infra/buildinfo"
	"github.com/yndnr/snapbridge/internal/infra/confloader"
	"github.com/yndnr/snapbridge/internal/telemetry/logger"
)

// App creates the snapbridge CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "snapbridge",
		Usage:   "Hand snapshots to an extension process over a pipe, files or shared memory",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SendCommand(),
			SweepCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"SNAPBRIDGE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: json, text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
	}
}

// flagKeys maps flags that override configuration to their config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"mode":         "transport.mode",
	"temp-dir":     "transport.temp_dir",
	"shm-strategy": "transport.shm_strategy",
	"child":        "child.command",
	"arg":          "child.args",
	"ack-timeout":  "child.ack_timeout",
	"metrics-addr": "metrics.addr",
}

// flagOverrides collects the explicitly set flags of c as config keys.
func flagOverrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	for name, key := range flagKeys {
		if !c.IsSet(name) {
			continue
		}
		switch v := c.Value(name).(type) {
		case cli.StringSlice:
			out[key] = v.Value()
		case time.Duration:
			out[key] = v.String()
		default:
			out[key] = v
		}
	}
	return out
}

// loadConfig builds the host configuration for c and validates it.
func loadConfig(c *cli.Context) (*config.HostConfig, error) {
	cfg := config.Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithFlags(flagOverrides(c)),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger installs the process logger. Logs always go to stderr.
func initLogger(cfg *config.HostConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// write renders a command result in the --output format.
func write(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.Write(c.App.Writer, format, data)
}
