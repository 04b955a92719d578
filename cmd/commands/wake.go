package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/open-harness/loom/internal/config"
)

// NewWakeCommand returns the onboarding subcommand.
func NewWakeCommand() *cli.Command {
	return &cli.Command{
		Name:   "wake",
		Usage:  "Initialize the loom home directory (~/.loom)",
		Action: runWake,
	}
}

func runWake(_ context.Context, _ *cli.Command) error {
	root := config.LoomPath()
	created := false

	dirs := []string{
		root,
		filepath.Join(root, "recordings"),
		filepath.Join(root, "sessions"),
		filepath.Join(root, "schedules"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	if !created {
		fmt.Printf("Already awake, %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(wakeMessage(root))
	return nil
}

const defaultConfig = `{
	// loom configuration

	"gateway": {
		"http_host": "127.0.0.1",
		"http_port": 18420,
		"ws_host": "127.0.0.1",
		"ws_port": 18421
	},

	"providers": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
			}

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434"
			// }
		}
	},

	"events": {
		"history_size": 1024
	},

	"recording": {
		"mode": "live"
	},

	"storage": {
		"driver": "file"
	},

	"scheduler": {
		"enabled": false
	}
}
`

const defaultDotenv = `# loom environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# ANTHROPIC_API_KEY=sk-ant-...
# OPENAI_API_KEY=sk-...
`

func wakeMessage(root string) string {
	return fmt.Sprintf(`
  Home set up at %s
  Config, recordings, sessions, schedules: all in there.

  Next steps:
    1. Drop your API key in %s/.env
    2. Tweak %s/config.jsonc if you feel like it
    3. Run: loom serve

`, root, root, root)
}
