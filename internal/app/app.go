// Package app wires configuration, logging, storage, the session gate, the
// fetcher, the dispatcher, and the HTTP server into one lifecycle.
package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"massdm/internal/config"
	"massdm/internal/dispatch"
	"massdm/internal/fetcher"
	"massdm/internal/insta"
	"massdm/internal/logstream"
	"massdm/internal/notify"
	"massdm/internal/server"
	"massdm/internal/session"
	"massdm/internal/storage"
	logx "massdm/pkg/logx"
)

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger
	buf    *logstream.Buffer

	store storage.Store
	sess  *session.Manager
	disp  *dispatch.Service
	srv   *server.Server
	cron  *cron.Cron

	cfgSub chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	buf := logstream.New()
	logSvc, log := logx.New(mapLoggingConfig(cfg.Logging), buf)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	apiTimeout, err := config.ParseDurationOrDefault("insta.timeout", cfg.Insta.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	instaCfg := insta.Config{
		BaseURL:   cfg.Insta.BaseURL,
		UserAgent: cfg.Insta.UserAgent,
		Timeout:   apiTimeout,
	}
	newClient := func() (insta.Client, error) { return insta.NewClient(instaCfg) }

	var sessStore session.Store
	if store != nil {
		sessStore = store
	}
	sess := session.NewManager(newClient, sessStore, log.With(logx.String("comp", "session")))

	fetch := fetcher.New(
		fetcher.Config{PagesPerSec: cfg.Fetch.PagesPerSec},
		sess,
		log.With(logx.String("comp", "fetcher")),
	)

	disp := dispatch.New(sess, store, log.With(logx.String("comp", "dispatch")))

	if cfg.Notify != nil {
		notif, err := notify.New(notify.Config{
			Enabled:    cfg.Notify.Enabled,
			Token:      cfg.Notify.Token,
			ChatID:     cfg.Notify.ChatID,
			RatePerMin: cfg.Notify.RatePerMin,
		}, log.With(logx.String("comp", "notify")))
		if err != nil {
			return nil, err
		}
		if notif != nil {
			disp.Observe(notif)
			log.Info("run summary notifier enabled")
		}
	}

	pollInterval, err := config.ParseDurationOrDefault("server.log_poll_interval", cfg.Server.LogPollInterval, 750*time.Millisecond)
	if err != nil {
		return nil, err
	}
	srv := server.New(
		server.Config{Addr: cfg.Server.Addr, LogPollInterval: pollInterval},
		sess, fetch, disp, buf,
		log.With(logx.String("comp", "http")),
	)

	a := &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		buf:    buf,
		store:  store,
		sess:   sess,
		disp:   disp,
		srv:    srv,
	}
	if err := a.setupMaintenance(cfg.Maintenance); err != nil {
		return nil, err
	}
	return a, nil
}

func mapLoggingConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Stream: logx.StreamConfig{
			Enabled:  lc.Stream.IsEnabled(),
			MinLevel: lc.Stream.MinLevel,
		},
	}
}

// setupMaintenance registers the cron jobs: run-audit pruning and periodic
// session snapshots. Both need storage; without it there is nothing to do.
func (a *App) setupMaintenance(mc config.MaintenanceConfig) error {
	if a.store == nil {
		return nil
	}
	keep, err := config.ParseDurationOrDefault("maintenance.keep_runs", mc.KeepRuns, 720*time.Hour)
	if err != nil {
		return err
	}
	pruneSpec := mc.PruneSchedule
	if pruneSpec == "" {
		pruneSpec = "0 4 * * *"
	}
	snapSpec := mc.SessionSnapshotSchedule
	if snapSpec == "" {
		snapSpec = "*/30 * * * *"
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(pruneSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := a.store.PruneRuns(ctx, time.Now().Add(-keep))
		if err != nil {
			a.log.Warn("run audit prune failed", logx.Err(err))
			return
		}
		if n > 0 {
			a.log.Info("run audit pruned", logx.Int64("removed", n))
		}
	}); err != nil {
		return err
	}
	if _, err := a.cron.AddFunc(snapSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.sess.Snapshot(ctx)
	}); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sess.Restore(ctx)

	if err := a.cfgm.Watch(ctx); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}
	a.cfgSub = a.cfgm.Subscribe(1)
	go a.reapplyLoop(ctx)

	if err := a.srv.Start(ctx); err != nil {
		return err
	}
	if a.cron != nil {
		a.cron.Start()
	}
	a.log.Info("started")
	return nil
}

// reapplyLoop hot-applies the logging block on config reload. Everything
// else takes effect on restart.
func (a *App) reapplyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			a.logSvc.Apply(mapLoggingConfig(cfg.Logging))
			a.log.Info("logging config reapplied")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	if a.cron != nil {
		a.cron.Stop()
	}
	// The run context is cancelled by now, so any in-flight run unwinds
	// from its current sleep quickly.
	a.disp.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	a.log.Info("stopped")
	return nil
}
