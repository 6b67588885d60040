// Package app assembles the long-lived process: the HTTP server, the
// observability runtime, and the background store/orchestrator state that
// needs a coordinated shutdown.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/haloverify/verifysvc/internal/config"
	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/orchestrator"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Orchestrator  *orchestrator.Orchestrator

	ShutdownTimeout time.Duration

	stop func()
}

// New wires the process's top-level dependencies. stop is called once by
// StopBackgroundTasks to release anything with no other shutdown hook (the
// in-memory store's sweeper goroutine, in particular).
func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, o *orchestrator.Orchestrator, stop func()) *App {
	timeout := 10 * time.Second
	if stop == nil {
		stop = func() {}
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Orchestrator:    o,
		ShutdownTimeout: timeout,
		stop:            stop,
	}
}

// StopBackgroundTasks runs the stop callback passed to New.
func (a *App) StopBackgroundTasks() {
	a.stop()
}

// Shutdown drains the HTTP server, stops background tasks, and flushes the
// observability runtime, each bounded by ShutdownTimeout.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()

	var err error
	if a.Server != nil {
		err = a.Server.Shutdown(ctx)
	}
	a.StopBackgroundTasks()
	if a.Observability != nil {
		if oerr := a.Observability.Shutdown(ctx); oerr != nil && err == nil {
			err = oerr
		}
	}
	return err
}
