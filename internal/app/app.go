// Package app wires the volt components and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voltpower/volt/internal/config"
	"github.com/voltpower/volt/internal/executor"
	"github.com/voltpower/volt/internal/monitor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
	"github.com/voltpower/volt/internal/status"
	"github.com/voltpower/volt/internal/tray"
)

// App holds the wired components.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Catalog  *plan.Catalog
	Switcher *plan.Switcher
	Prefs    *prefs.Store
	Monitor  *monitor.Monitor
	Status   *status.Server // nil when status_addr is empty
}

// Option overrides a collaborator, mainly for tests.
type Option func(*deps)

type deps struct {
	runner executor.Runner
	reader power.Reader
	hook   power.Hook
	noHook bool
}

// WithRunner runs powercfg through r.
func WithRunner(r executor.Runner) Option {
	return func(d *deps) { d.runner = r }
}

// WithPower replaces the OS power source query and notification hook.
// A nil hook disables notifications.
func WithPower(r power.Reader, h power.Hook) Option {
	return func(d *deps) {
		d.reader, d.hook = r, h
		d.noHook = h == nil
	}
}

// New builds every component from cfg. It reads the preference file and the
// initial power source but starts nothing.
func New(cfg *config.Config, log *zap.Logger, version string, opts ...Option) *App {
	if log == nil {
		log = zap.NewNop()
	}
	d := deps{}
	for _, o := range opts {
		o(&d)
	}
	if d.runner == nil {
		d.runner = executor.New(cfg.CommandTimeout)
	}
	if d.reader == nil {
		d.reader = power.NewReader()
	}
	if d.hook == nil && !d.noHook {
		d.hook = power.NewHook(log.Named("power"))
	}

	planOpts := plan.Options{
		Command: cfg.Powercfg,
		Marker:  cfg.SchemeMarker,
		Logger:  log.Named("plan"),
	}
	a := &App{
		cfg:      cfg,
		log:      log,
		Catalog:  plan.NewCatalog(d.runner, planOpts),
		Switcher: plan.NewSwitcher(d.runner, planOpts),
		Prefs: prefs.Open(cfg.PrefsFile, prefs.Options{
			Rollback: cfg.RollbackOnPersistError,
			Logger:   log.Named("prefs"),
		}),
	}

	mcfg := monitor.Config{
		Reader:       d.reader,
		Prefs:        a.Prefs,
		Activator:    a.Switcher,
		Logger:       log.Named("monitor"),
		ApplyOnStart: cfg.ApplyOnStart,
	}
	if d.hook != nil {
		mcfg.Hook = d.hook
	}
	a.Monitor = monitor.New(mcfg)

	if cfg.StatusAddr != "" {
		a.Status = status.NewServer(status.Config{
			Monitor:         a.Monitor,
			Prefs:           a.Prefs,
			Version:         version,
			Logger:          log.Named("status"),
			ShutdownTimeout: cfg.ShutdownTimeout,
		})
	}
	return a
}

// Run starts the monitor and the status server, then shows the tray in the
// foreground (or waits for ctx when withTray is false). Closing the tray or
// cancelling ctx stops everything; Run waits at most shutdown_timeout for
// the background goroutines to exit.
func (a *App) Run(ctx context.Context, withTray bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return a.Monitor.Run(gctx)
	})
	if a.Status != nil {
		g.Go(func() error {
			// A second instance already owns the port; keep running without
			// the status surface.
			if err := a.Status.ListenAndServe(gctx, a.cfg.StatusAddr); err != nil {
				a.log.Error("status server stopped", zap.String("addr", a.cfg.StatusAddr), zap.Error(err))
			}
			return nil
		})
	}

	if withTray {
		var notifier tray.Notifier
		if a.cfg.Notify {
			notifier = tray.DesktopNotifier{}
		}
		ctl := tray.NewController(a.Catalog, a.Prefs, a.Monitor, notifier, a.log.Named("tray"))
		tray.Run(gctx, ctl, a.log.Named("tray"))
	} else {
		<-gctx.Done()
	}

	a.log.Info("shutting down")
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	t := time.NewTimer(a.cfg.ShutdownTimeout)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		return fmt.Errorf("shutdown timed out after %s", a.cfg.ShutdownTimeout)
	}
}
