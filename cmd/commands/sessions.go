package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/open-harness/loom/internal/config"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect workflow sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show a session's event log and current state",
				ArgsUsage: "<session_id>",
				Action:    runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func loadConfigOrDefaults(cmd *cli.Command) *config.Config {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = &config.Config{}
	}
	return cfg
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfigOrDefaults(cmd)

	sc, closeStore, err := openScaffold(cfg)
	if err != nil {
		return fmt.Errorf("open scaffold: %w", err)
	}
	defer closeStore()

	ids, err := sc.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE")
	for _, id := range ids {
		status, err := sc.GetStatus(ctx, id)
		if err != nil {
			status = "error"
		}
		title, _ := sc.GetTitle(ctx, id)
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, status, title)
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: loom sessions show <session_id>")
	}

	cfg := loadConfigOrDefaults(cmd)

	sc, closeStore, err := openScaffold(cfg)
	if err != nil {
		return fmt.Errorf("open scaffold: %w", err)
	}
	defer closeStore()

	state, err := sc.GetState(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	title, _ := sc.GetTitle(ctx, sessionID)
	usage, _ := sc.GetTokenUsage(ctx, sessionID)

	encoded, err := json.MarshalIndent(map[string]any{
		"title":       title,
		"state":       state,
		"token_usage": usage,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
