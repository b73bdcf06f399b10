package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/snapbridge/internal/cli/output"
	"github.com/yndnr/snapbridge/internal/infra/buildinfo"
)

type versionInfo buildinfo.Info

func (v versionInfo) Table() *output.Table {
	t := output.NewTable("VERSION", "COMMIT", "BUILT", "GO")
	t.AddRow(v.Version, v.Commit, v.BuildTime, v.GoVersion)
	return t
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return write(c, versionInfo(buildinfo.Get()))
		},
	}
}
