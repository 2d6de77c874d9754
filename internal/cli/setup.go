package cli

import (
	"log/slog"

	"github.com/agendae/fieldsync/internal/config"
	"github.com/agendae/fieldsync/internal/media"
	"github.com/agendae/fieldsync/internal/netmon"
	"github.com/agendae/fieldsync/internal/remote"
	"github.com/agendae/fieldsync/internal/store"
)

// app bundles the components a subcommand needs, built once from the
// resolved configuration.
type app struct {
	cfg     config.Config
	store   *store.Store
	backend remote.Backend
	monitor *netmon.Monitor
	media   *media.Pipeline
	log     *slog.Logger
}

// setup loads the config, applies flag overrides, and wires the store,
// remote client, connectivity monitor and media pipeline.
func setup(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if opts.User != "" {
		cfg.User = opts.User
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	log := newLogger(opts.Verbose)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout.Std(), log)
	monitor := netmon.New(client.Health, log)

	pipeline := media.New(st, client, log, media.Config{
		Budget: media.Budget{
			MaxItems: cfg.Media.MaxItems,
			MaxBytes: cfg.Media.MaxBytes,
		},
		KeepUploadedBlobs: cfg.Media.KeepUploadedBlobs,
		MaxLongEdge:       cfg.Media.MaxLongEdge,
		JPEGQuality:       cfg.Media.JPEGQuality,
	})

	return &app{
		cfg:     cfg,
		store:   st,
		backend: client,
		monitor: monitor,
		media:   pipeline,
		log:     log,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
