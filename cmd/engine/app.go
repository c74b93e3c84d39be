package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/events"
	"mapsharvest-engine/internal/jobs"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape"
	"mapsharvest-engine/internal/scrape/browser"
	"mapsharvest-engine/internal/scrape/enrich"
	"mapsharvest-engine/internal/secrets"
	"mapsharvest-engine/internal/sink"
	"mapsharvest-engine/internal/store"
)

// app holds everything the commands share: the live config, the stores and
// the event hub.
type app struct {
	dataDir     string
	cfgPath     string
	tacticsPath string

	cfgVal atomic.Value // stores config.Config
	hub    *events.Hub
	db     *store.DB
	pg     *store.Postgres
	log    *slog.Logger
}

func newApp(ctx context.Context, o rootOptions) (*app, error) {
	dataDir, err := filepath.Abs(o.dataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	a := &app{dataDir: dataDir, hub: events.NewHub(), log: logging.New("engine")}

	a.cfgPath = o.config
	if a.cfgPath == "" {
		a.cfgPath, err = config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
		if err != nil {
			return nil, fmt.Errorf("config bootstrap failed: %w", err)
		}
	}
	a.tacticsPath = o.tactics
	if a.tacticsPath == "" {
		a.tacticsPath, err = config.EnsureUserTactics(dataDir, filepath.Join("config", "tactics.yml"))
		if err != nil {
			a.log.Warn("tactics bootstrap failed, using built-in tactics", "err", err)
			a.tacticsPath = ""
		}
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfgVal.Store(cfg)

	if cfg.Storage.SQLite {
		dbPath := filepath.Join(dataDir, cfg.Storage.DBName)
		a.db, err = store.OpenHistory(dbPath)
		if err != nil {
			return nil, fmt.Errorf("history db: %w", err)
		}
		a.log.Info("history db ready", "path", dbPath)
	}

	dsn, err := secrets.ResolvePostgresDSN(cfg.Storage)
	if err != nil {
		a.log.Warn("postgres disabled", "err", err)
	} else if dsn != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.pg, err = store.OpenPostgres(pctx, dsn)
		cancel()
		if err != nil {
			a.log.Warn("postgres disabled", "err", err)
			a.pg = nil
		}
	}
	return a, nil
}

// loadConfig reads the user config, applies the tactics overlay and the
// environment, then normalizes and validates the result.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", a.cfgPath, err)
	}
	if a.tacticsPath != "" {
		if err := config.OverlayTactics(&cfg, a.tacticsPath); err != nil {
			return cfg, fmt.Errorf("tactics overlay (%s): %w", a.tacticsPath, err)
		}
	}
	if dsn := os.Getenv("MAPSHARVEST_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if !filepath.IsAbs(cfg.Output.Dir) {
		cfg.Output.Dir = filepath.Join(a.dataDir, cfg.Output.Dir)
	}

	normalized, vr := config.NormalizeAndValidate(cfg)
	log := logging.New("config")
	for _, w := range vr.Warnings {
		log.Warn("config", "warning", w)
	}
	if !vr.OK() {
		return cfg, errors.New("config validation failed:\n- " + strings.Join(vr.Errors, "\n- "))
	}
	return normalized, nil
}

func (a *app) config() config.Config {
	return a.cfgVal.Load().(config.Config)
}

func (a *app) outputDir() string {
	return a.config().Output.Dir
}

// sink writes the file first so the history rows can list it.
func (a *app) sink(cfg config.Config) sink.Sink {
	var stores sink.Multi
	if a.db != nil {
		stores = append(stores, &sink.SQLite{DB: a.db.Pool})
	}
	if a.pg != nil {
		stores = append(stores, &sink.Postgres{Store: a.pg})
	}
	return sink.Chain{sink.NewFile(cfg.Output.Dir), stores, &sink.Notify{Hub: a.hub}}
}

func (a *app) enricher(cfg config.Config) *enrich.Enricher {
	var opts []enrich.Option
	if a.db != nil {
		opts = append(opts, enrich.WithCache(store.NewEmailCache(a.db.Pool, cfg.Enrich.CacheTTL)))
	}
	return enrich.New(cfg.Enrich, opts...)
}

// Run builds a pipeline from the config as it is right now, so edits made
// through the API apply to the next job.
func (a *app) Run(ctx context.Context, rc *runctx.RunContext) scrape.Outcome {
	cfg := a.config()
	out := a.sink(cfg)
	p, err := scrape.New(cfg, browser.ChromeFactory(cfg.Browser), a.enricher(cfg), out)
	if err != nil {
		res := sink.Result{Status: domain.StatusError, Err: err}
		if derr := out.Deliver(context.WithoutCancel(ctx), rc, res); derr != nil {
			a.log.Error("deliver failed", "job_id", rc.JobID, "err", derr)
		}
		return scrape.Outcome{Status: domain.StatusError, Err: err}
	}
	return p.Run(ctx, rc)
}

func (a *app) newManager() *jobs.Manager {
	cfg := a.config()
	return jobs.NewManager(a, a.hub, jobs.Options{
		LockPath:      filepath.Join(a.dataDir, "engine.lock"),
		MessageLimit:  cfg.Jobs.MessageLimit,
		ShutdownGrace: cfg.Jobs.ShutdownGrace,
	})
}

func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
