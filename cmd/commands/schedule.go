package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/open-harness/loom/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage persisted schedule entries",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List schedule entries",
				Action: runScheduleList,
			},
			{
				Name:      "remove",
				Usage:     "Remove a schedule entry",
				ArgsUsage: "<entry_id>",
				Action:    runScheduleRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func runScheduleList(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfigOrDefaults(cmd)
	store := scheduler.NewScheduleStore(cfg.Scheduler.Dir)

	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("list schedule entries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No schedule entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tWORKFLOW\tTRIGGER\tENABLED\tRUNS")
	for _, e := range entries {
		trigger := "-"
		switch {
		case e.CronSpec != "":
			trigger = e.CronSpec
		case e.IntervalSec > 0:
			trigger = fmt.Sprintf("every %ds", e.IntervalSec)
		case e.OnEvent != nil:
			trigger = fmt.Sprintf("on %s", e.OnEvent.Event)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%d\n",
			e.ID, e.Title, e.WorkflowName, trigger, e.Enabled, e.RunCount)
	}
	return w.Flush()
}

func runScheduleRemove(_ context.Context, cmd *cli.Command) error {
	entryID := cmd.Args().First()
	if entryID == "" {
		return fmt.Errorf("usage: loom schedule remove <entry_id>")
	}

	cfg := loadConfigOrDefaults(cmd)
	store := scheduler.NewScheduleStore(cfg.Scheduler.Dir)

	if err := store.Delete(entryID); err != nil {
		return fmt.Errorf("remove schedule entry: %w", err)
	}
	fmt.Printf("Removed %s\n", entryID)
	return nil
}
