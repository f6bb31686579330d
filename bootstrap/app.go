package bootstrap

import (
	"context"

	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/pkg/logging"
)

type App struct {
	Cfg            *config.Config
	Infrastructure *Infrastructure
	Repositories   *Repositories
	Services       *Services
	Workers        *Workers
	Handlers       *Handlers
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Cfg: cfg}
	infra, err := NewInfrastructure(cfg)
	if err != nil {
		logging.Logger.Error("fail NewInfrastructure", "error", err)
		return nil, err
	}
	app.Infrastructure = infra

	// repos
	repos := NewRepositories(infra.DB)
	app.Repositories = repos

	// services
	services := NewServices(cfg, repos, infra)
	app.Services = services

	// pipeline workers
	app.Workers = NewWorkers(cfg, repos, services, infra)

	handlers := NewHandlers(services, infra)
	app.Handlers = handlers

	return app, nil
}

// StartWorkers brings the pipeline consumers online.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Workers.Start(ctx)
}

// Shutdown infra
func (a *App) Shutdown() error {
	if a == nil {
		return nil
	}
	if a.Infrastructure != nil {
		if err := a.Infrastructure.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}
