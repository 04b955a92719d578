package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/open-harness/loom/internal/config"
)

// NewRootCommand returns the top-level CLI command. version and commit are
// set by goreleaser ldflags in cmd/loom/main.go.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "loom",
		Usage:   "Agentic workflow runtime",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewWakeCommand(),
			NewServeCommand(),
			NewSessionsCommand(),
			NewScheduleCommand(),
			NewStatusCommand(),
		},
	}
}
