package command

import (
	"errors"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize/english"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/cli/output"
	"github.com/yndnr/snapbridge/internal/telemetry/logger"
	"github.com/yndnr/snapbridge/internal/telemetry/metric"
	"github.com/yndnr/snapbridge/internal/transport"
	"github.com/yndnr/snapbridge/internal/transport/orphan"
	"github.com/yndnr/snapbridge/internal/transport/shm"
)

// SweepCommand returns the sweep command.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove files and shared-memory segments left behind by dead hosts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "temp-dir", Usage: "Directory holding transport state"},
			&cli.StringFlag{Name: "shm-dir", Usage: "Directory of named shared-memory segments", Value: shm.DevShm},
		},
		Action: runSweep,
	}
}

type sweepTarget struct {
	Dir     string   `json:"dir" yaml:"dir"`
	Prefix  string   `json:"prefix" yaml:"prefix"`
	Scanned int      `json:"scanned" yaml:"scanned"`
	Removed []string `json:"removed" yaml:"removed"`
	Errors  []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type sweepResult struct {
	Targets []sweepTarget `json:"targets" yaml:"targets"`
}

func (r *sweepResult) Table() *output.Table {
	t := output.NewTable("DIR", "PREFIX", "SCANNED", "REMOVED")
	for _, tg := range r.Targets {
		t.AddRow(tg.Dir, tg.Prefix, strconv.Itoa(tg.Scanned), english.Plural(len(tg.Removed), "entry", "entries"))
	}
	return t
}

func runSweep(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return err
	}

	s := orphan.NewSweeper(
		orphan.WithLogger(logger.Slog(log)),
		orphan.WithMetrics(metric.Global().Transport),
	)
	targets := []sweepTarget{
		{Dir: cfg.Transport.TempDir, Prefix: transport.FileDirPrefix},
		{Dir: cfg.Transport.TempDir, Prefix: transport.ShmDirPrefix},
		{Dir: c.String("shm-dir"), Prefix: transport.SegmentPrefix},
	}

	var errs []error
	for i := range targets {
		tg := &targets[i]
		tg.Dir = filepath.Clean(tg.Dir)
		rep := s.Sweep(tg.Dir, tg.Prefix)
		tg.Scanned = rep.Scanned
		tg.Removed = rep.Removed
		for _, e := range rep.Errors {
			tg.Errors = append(tg.Errors, e.Error())
		}
		errs = append(errs, rep.Err())
	}

	if err := write(c, &sweepResult{Targets: targets}); err != nil {
		return err
	}
	return errors.Join(errs...)
}
