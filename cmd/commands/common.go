package commands

import (
	"github.com/open-harness/loom/internal/config"
	"github.com/open-harness/loom/internal/recorder"
	"github.com/open-harness/loom/internal/scaffold"
)

// openScaffold builds a Scaffold from cfg for commands that only read
// session state (sessions, status) and have no need to run workflows
// themselves.
func openScaffold(cfg *config.Config) (*scaffold.Scaffold, func(), error) {
	store, snapshots, closeStore, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	rec := recorder.NewFileRecorder(cfg.Recording.RecordingsDir)
	sc := scaffold.NewScaffold(scaffold.Config{
		Mode:             cfg.Recording.Mode,
		Providers:        cfg.Providers.Providers,
		DefaultProvider:  cfg.Providers.Default,
		EventHistorySize: cfg.Events.HistorySize,
	}, store, snapshots, rec)

	return sc, closeStore, nil
}
