package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/open-harness/loom/internal/config"
	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/recorder"
	"github.com/open-harness/loom/internal/scaffold"
	"github.com/open-harness/loom/internal/scheduler"
	"github.com/open-harness/loom/internal/workflow"
	"github.com/open-harness/loom/internal/workflow/builtin"
	httptransport "github.com/open-harness/loom/transport/http"
	wstransport "github.com/open-harness/loom/transport/ws"

	"github.com/open-harness/loom/internal/hub"
)

// NewServeCommand returns the serve subcommand: the gateway process that
// wires a Scaffold and exposes it over HTTP and WebSocket transports.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the loom gateway (HTTP + WebSocket)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "HTTP host to listen on",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "HTTP port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
	}

	logLevel := slog.LevelInfo
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("http-host") {
		cfg.Gateway.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		cfg.Gateway.HTTPPort = cmd.Int("http-port")
	}

	store, snapshots, closeStore, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer closeStore()

	rec := recorder.NewFileRecorder(cfg.Recording.RecordingsDir)

	sc := scaffold.NewScaffold(scaffold.Config{
		Mode:             cfg.Recording.Mode,
		Providers:        cfg.Providers.Providers,
		DefaultProvider:  cfg.Providers.Default,
		EventHistorySize: cfg.Events.HistorySize,
	}, store, snapshots, rec)

	if err := sc.RegisterDefinition(builtin.Echo()); err != nil {
		return fmt.Errorf("register builtin workflow: %w", err)
	}

	if cfg.Workflows.Dir != "" {
		defs, err := workflow.LoadDir(cfg.Workflows.Dir)
		if err != nil {
			return fmt.Errorf("load declarative workflows: %w", err)
		}
		for _, def := range defs {
			if err := sc.RegisterDefinition(def); err != nil {
				return fmt.Errorf("register declarative workflow: %w", err)
			}
		}
		slog.Info("loaded declarative workflows", "dir", cfg.Workflows.Dir, "count", len(defs))
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedStore := scheduler.NewScheduleStore(cfg.Scheduler.Dir)
		sched = scheduler.New(scheduler.Config{
			Scaffold: sc,
			Bus:      sc.Bus(),
			Store:    schedStore,
		})
		sched.Start()
		defer sched.Stop()
	}

	h := hub.New(sc)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Gateway.HTTPHost, cfg.Gateway.HTTPPort)
	wsAddr := fmt.Sprintf("%s:%d", cfg.Gateway.WSHost, cfg.Gateway.WSPort)

	cleanup, err := hub.Serve(h, httptransport.AsTransport(httpAddr), wstransport.AsTransport(wsAddr))
	if err != nil {
		return fmt.Errorf("start transports: %w", err)
	}

	slog.Info("loom gateway listening", "http", httpAddr, "ws", wsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-ctx.Done()
	slog.Info("shutting down...")
	cleanup()
	return nil
}

// openStores builds the event store and snapshot store for cfg.Storage,
// and a close func releasing any held resources (a no-op for the file
// driver, db.Close for sqlite).
func openStores(cfg *config.Config) (eventstore.Store, eventstore.SnapshotStore, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		dsn := cfg.Storage.DSN
		if dsn == "" {
			dsn = filepath.Join(config.LoomPath(), "loom.sqlite")
		}
		sqlStore, err := eventstore.OpenSQLStore(dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlStore, eventstore.NewSQLSnapshotStore(sqlStore), func() { _ = sqlStore.Close() }, nil
	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = filepath.Join(config.LoomPath(), "sessions")
		}
		return eventstore.NewFileStore(dir), eventstore.NewFileSnapshotStore(dir), func() {}, nil
	}
}
