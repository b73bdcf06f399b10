package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/cli/output"
	"github.com/yndnr/snapbridge/internal/host/config"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the merged configuration with secrets masked",
				Flags:  overrideFlags(),
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration and exit",
				Flags:  overrideFlags(),
				Action: runConfigValidate,
			},
		},
	}
}

// overrideFlags are the transport flags of send, accepted by config
// subcommands so they can show what a send would use.
func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Transport mode: stream, file, shm"},
		&cli.StringFlag{Name: "temp-dir", Usage: "Directory for file and shared-memory state"},
		&cli.StringFlag{Name: "child", Usage: "Extension command"},
	}
}

func runConfigShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.Write(c.App.Writer, format, config.Sanitize(cfg))
}

func runConfigValidate(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.App.Writer, "configuration is valid")
	return err
}
