package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/cli/output"
	"github.com/yndnr/snapbridge/internal/extension"
	"github.com/yndnr/snapbridge/internal/host"
	"github.com/yndnr/snapbridge/internal/host/config"
	"github.com/yndnr/snapbridge/internal/infra/confloader"
	"github.com/yndnr/snapbridge/internal/infra/shutdown"
	"github.com/yndnr/snapbridge/internal/telemetry/logger"
	"github.com/yndnr/snapbridge/internal/telemetry/metric"
	"github.com/yndnr/snapbridge/internal/transport"
)

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Start the extension and hand it each FILE as a snapshot",
		ArgsUsage: "FILE... (- reads stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Transport mode: stream, file, shm"},
			&cli.StringFlag{Name: "temp-dir", Usage: "Directory for file and shared-memory state"},
			&cli.StringFlag{Name: "shm-strategy", Usage: "Shared-memory strategy: auto, named, file"},
			&cli.StringFlag{Name: "child", Usage: "Extension command"},
			&cli.StringSliceFlag{Name: "arg", Usage: "Extension argument (repeatable)"},
			&cli.DurationFlag{Name: "ack-timeout", Usage: "How long to wait for each acknowledgement"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
			&cli.StringFlag{Name: "format", Usage: "Output format tag for every snapshot (default: file extension)"},
			&cli.BoolFlag{Name: "watch", Usage: "Apply log level changes from the config file while running"},
		},
		Action: runSend,
	}
}

type sentFile struct {
	Path      string `json:"path" yaml:"path"`
	Sequence  int64  `json:"sequence" yaml:"sequence"`
	Size      int    `json:"size" yaml:"size"`
	Delivered bool   `json:"delivered" yaml:"delivered"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type sendResult struct {
	SessionID string     `json:"session_id" yaml:"session_id"`
	Mode      string     `json:"mode" yaml:"mode"`
	Acked     int64      `json:"acked" yaml:"acked"`
	Failed    int64      `json:"failed" yaml:"failed"`
	Files     []sentFile `json:"files" yaml:"files"`
}

func (r *sendResult) Table() *output.Table {
	t := output.NewTable("SEQ", "PATH", "SIZE", "DELIVERED")
	for _, f := range r.Files {
		delivered := strconv.FormatBool(f.Delivered)
		if f.Error != "" {
			delivered = f.Error
		}
		t.AddRow(strconv.FormatInt(f.Sequence, 10), f.Path, humanize.IBytes(uint64(f.Size)), delivered)
	}
	return t
}

func runSend(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("send: no snapshot files given")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return err
	}
	sl := logger.Slog(log)
	reg := metric.Global()

	tr, err := transport.New(cfg.Transport.Config(),
		transport.WithLogger(sl),
		transport.WithMetrics(reg.Transport),
	)
	if err != nil {
		return err
	}
	child, err := extension.Start(cfg.Child.Command, cfg.Child.Args,
		extension.WithEnv(cfg.Child.Env...),
		extension.WithStderr(c.App.ErrWriter),
	)
	if err != nil {
		tr.Close()
		return err
	}
	relay := host.NewRelay(tr, child,
		host.WithAckTimeout(cfg.Child.AckTimeout),
		host.WithRelayLogger(sl),
	)
	log.Info("extension started",
		"command", cfg.Child.Command,
		"pid", child.Pid(),
		"mode", cfg.Transport.Mode,
		"session_id", relay.SessionID(),
	)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	result := &sendResult{SessionID: relay.SessionID(), Mode: cfg.Transport.Mode}
	sent := make(chan struct{})

	// Hooks run in reverse: stop sending, drain acks, stop the child, then
	// release transport resources.
	h := shutdown.NewHandler(cfg.Child.AckTimeout + cfg.Child.StopTimeout)
	h.OnShutdown(func(context.Context) error { return tr.Close() })
	h.OnShutdown(func(context.Context) error {
		relay.Close()
		return nil
	})
	h.OnShutdown(func(ctx context.Context) error {
		stopCtx, stop := context.WithTimeout(ctx, cfg.Child.StopTimeout)
		defer stop()
		return ignoreExit(child.Stop(stopCtx))
	})
	h.OnShutdown(func(ctx context.Context) error {
		if err := relay.Flush(ctx); err != nil {
			log.Warn("snapshots still unacknowledged", "pending", relay.Pending())
		}
		return nil
	})
	if stopMetrics := serveMetrics(cfg.Metrics, reg, log); stopMetrics != nil {
		h.OnShutdown(stopMetrics)
	}
	if c.Bool("watch") {
		if stopWatch := watchConfig(c.String("config"), log); stopWatch != nil {
			h.OnShutdown(stopWatch)
		}
	}
	h.OnShutdown(func(ctx context.Context) error {
		cancel()
		select {
		case <-sent:
		case <-ctx.Done():
		}
		return nil
	})

	go func() {
		defer close(sent)
		result.Files = deliverAll(ctx, relay, c.Args().Slice(), c.String("format"), c.App.Reader)
		h.Trigger()
	}()

	shutdownErr := h.Wait(c.Context)
	<-sent
	result.Acked, result.Failed = relay.Stats()
	if err := write(c, result); err != nil {
		return err
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	if result.Failed > 0 {
		return fmt.Errorf("send: %d of %d snapshots failed", result.Failed, len(result.Files))
	}
	return nil
}

func deliverAll(ctx context.Context, relay *host.Relay, paths []string, format string, stdin io.Reader) []sentFile {
	files := make([]sentFile, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		f := sentFile{Path: path}
		data, err := readSnapshot(path, stdin)
		if err != nil {
			f.Error = err.Error()
			files = append(files, f)
			continue
		}
		f.Size = len(data)
		f.Sequence, f.Delivered = relay.Deliver(ctx, data, snapshotFormat(path, format))
		files = append(files, f)
	}
	return files
}

func readSnapshot(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// snapshotFormat returns override, or the extension of path without the dot.
func snapshotFormat(path, override string) string {
	if override != "" {
		return override
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// ignoreExit drops the exit status of a child that was told to stop.
func ignoreExit(err error) error {
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func serveMetrics(cfg config.MetricsSection, reg *metric.Registry, log logger.Logger) func(context.Context) error {
	if cfg.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, reg.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv.Shutdown
}

func watchConfig(path string, log logger.Logger) func(context.Context) error {
	if path == "" {
		log.Warn("--watch needs --config")
		return nil
	}
	w, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(logger.Slog(log)))
	if err != nil {
		log.Warn("cannot watch config file", "path", path, "error", err)
		return nil
	}
	w.OnChange(func(p string) {
		cfg := config.Default()
		if err := confloader.NewLoader(confloader.WithConfigFile(p)).Load(cfg); err != nil {
			log.Warn("config reload failed", "path", p, "error", err)
			return
		}
		before := logger.Level()
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("config reload failed", "path", p, "error", err)
			return
		}
		if after := logger.Level(); after != before {
			log.Info("log level changed", "level", after)
		}
	})
	w.StartAsync()
	return func(context.Context) error { return w.Stop() }
}
