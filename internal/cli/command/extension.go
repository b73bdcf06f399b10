package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/extension"
	"github.com/yndnr/snapbridge/internal/infra/buildinfo"
	"github.com/yndnr/snapbridge/internal/telemetry/logger"
	"github.com/yndnr/snapbridge/internal/transport"
)

// ExtensionApp creates the snapbridge-ext application: a reference
// extension that reads snapshots from stdin, acknowledges each one on
// stdout and optionally stores the payloads.
func ExtensionApp() *cli.App {
	return &cli.App{
		Name:    "snapbridge-ext",
		Usage:   "Receive snapshots from a snapbridge host on stdin",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out-dir",
				Usage:   "Store each payload here as <session>_<sequence>.<format>",
				EnvVars: []string{"SNAPBRIDGE_EXT_OUT_DIR"},
			},
			&cli.StringFlag{
				Name:  "max-payload",
				Usage: "Largest streamed payload accepted",
				Value: humanize.IBytes(uint64(transport.DefaultMaxPayloadSize)),
			},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"SNAPBRIDGE_EXT_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "json"},
		},
		Action: runExtension,
	}
}

func runExtension(c *cli.Context) error {
	maxPayload, err := humanize.ParseBytes(c.String("max-payload"))
	if err != nil {
		return fmt.Errorf("--max-payload: %w", err)
	}
	// stdout carries acknowledgements, so logs go to ErrWriter.
	log, err := logger.New(logger.Config{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return err
	}
	log = log.With("pid", os.Getpid())
	logger.SetDefault(log)

	outDir := c.String("out-dir")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := extension.NewReceiver(c.App.Reader, c.App.Writer, int64(maxPayload), storeSnapshot(outDir),
		extension.WithReceiverLogger(logger.Slog(log)),
	)
	return r.Run(ctx)
}

// storeSnapshot writes payloads into dir, or discards them when dir is empty.
func storeSnapshot(dir string) extension.Handler {
	return func(ctx context.Context, snap extension.Snapshot) error {
		if dir == "" {
			return nil
		}
		format := snap.Meta.OutputFormat
		if format == "" {
			format = "bin"
		}
		name := fmt.Sprintf("%s_%06d.%s", filepath.Base(snap.Meta.SessionID), snap.Meta.SequenceNumber, filepath.Base(format))
		path := filepath.Join(dir, name)

		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, snap.Data, 0o644); err != nil {
			return err
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return err
		}
		logger.L(logger.WithSnapshot(ctx, snap.Meta.SessionID, snap.Meta.SequenceNumber)).
			Debug("snapshot stored", "path", path)
		return nil
	}
}
