//go:build linux

// Package app wires the server core to the process: configuration, signal
// dispositions and the shutdown path.
package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/X4/lwan/config"
	"github.com/X4/lwan/core"
	"github.com/X4/lwan/core/router"
)

// App is the application instance.
type App struct {
	cfg *config.Config
	srv *core.Server
	log hclog.Logger
}

// New builds the server from the configuration.
func New(cfg *config.Config) (*App, error) {
	level := hclog.Info
	if cfg.Env == "development" {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:  "lwan",
		Level: level,
	})

	srv, err := core.New(core.Options{
		Port:             cfg.Port,
		Workers:          cfg.Workers,
		KeepAliveTimeout: cfg.KeepAliveTimeout,
		Log:              log,
	})
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, srv: srv, log: log}, nil
}

// SetHandlers mounts the handler table on the server's router.
func (a *App) SetHandlers(entries []router.Entry) error {
	return a.srv.SetHandlers(entries)
}

// Server exposes the core for tests and embedders.
func (a *App) Server() *core.Server {
	return a.srv
}

// Run starts the server and blocks until a termination signal completes
// the shutdown sequence. The calling goroutine becomes the acceptor.
func (a *App) Run() error {
	// The process never reads stdin, and a SIGPIPE from a dead peer must
	// not kill it.
	signal.Ignore(syscall.SIGPIPE)
	os.Stdin.Close()

	go a.awaitSignal()

	a.log.Info("starting", "port", a.cfg.Port, "env", a.cfg.Env)
	return a.srv.Run()
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info("signal received, shutting down", "signal", sig.String())
	a.srv.Shutdown()
}
