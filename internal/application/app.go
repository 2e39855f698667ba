// Package application assembles the service from configuration: the store,
// the source fetcher and the core service. Both commands start here.
package application

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/ipampa/internal/config"
	"github.com/JonMunkholm/ipampa/internal/core"
	"github.com/JonMunkholm/ipampa/internal/source"
	"github.com/JonMunkholm/ipampa/internal/store"
)

// App holds the assembled service and the store behind it.
type App struct {
	Config  *config.Config
	Store   core.Store
	Service *core.Service

	closeStore func()
}

// New opens the configured store and builds the service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, closeStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fetcher := source.NewHTTPFetcher(source.Options{
		Timeout:   cfg.Source.Timeout,
		MaxBytes:  cfg.Source.MaxBytes,
		UserAgent: cfg.Source.UserAgent,
	})

	svc, err := core.NewService(st, fetcher, ServiceConfig(cfg))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("create service: %w", err)
	}

	return &App{Config: cfg, Store: st, Service: svc, closeStore: closeStore}, nil
}

// ServiceConfig maps the application configuration onto core.ServiceConfig.
func ServiceConfig(cfg *config.Config) core.ServiceConfig {
	return core.ServiceConfig{
		SourceURL:            cfg.Source.URL,
		SourceHeaders:        cfg.Source.SourceHeaders(),
		FamilyMarker:         cfg.Refresh.FamilyMarker,
		RefreshTimeout:       cfg.Refresh.Timeout,
		MaxConcurrentExports: cfg.Export.MaxConcurrent,
		ExportMaxWait:        cfg.Export.MaxWaitTime,
	}
}

// Close releases the store.
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}
