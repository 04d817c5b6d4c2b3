package app

import (
	"log/slog"

	"esdata/features/loader"
	"esdata/internal/config"
)

// App is the wired fixture loader for one configuration.
type App struct {
	Config *config.Config
	Deps   *Dependencies
	Loader *loader.Loader
}

func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *App {
	l := loader.New(deps.Elasticsearch, deps.Mappings, deps.Opener,
		loader.WithLogger(logger),
		loader.WithConcurrency(cfg.TransformConcurrency),
	)
	return &App{
		Config: cfg,
		Deps:   deps,
		Loader: l,
	}
}
