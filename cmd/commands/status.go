package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check whether the loom gateway is reachable",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := loadConfigOrDefaults(cmd)
			addr := fmt.Sprintf("http://%s:%d/api/health", cfg.Gateway.HTTPHost, cfg.Gateway.HTTPPort)

			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(addr)
			if err != nil {
				fmt.Printf("Gateway: NOT RUNNING (%s unreachable)\n", addr)
				return nil
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Gateway: UNHEALTHY (%s returned %d)\n", addr, resp.StatusCode)
				return nil
			}

			fmt.Printf("Gateway: ALIVE (%s)\n", addr)
			return nil
		},
	}
}
