package main

import (
	"context"
	"fmt"

	"github.com/HanTheDev/quota-gateway/internal/admission"
	"github.com/HanTheDev/quota-gateway/internal/config"
	"github.com/HanTheDev/quota-gateway/internal/db"
	"github.com/HanTheDev/quota-gateway/internal/logger"
	"github.com/HanTheDev/quota-gateway/internal/ratelimit"
	"github.com/HanTheDev/quota-gateway/internal/seed"
	"github.com/HanTheDev/quota-gateway/internal/server"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app holds everything built during startup, in construction order.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   db.Store
	counter *ratelimit.Counter
	server  *server.Server
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "quota-gateway")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}

	a.store, err = db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open database: %w", err), a.Close())
	}
	if err := a.store.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, a.Close())
	}

	specs := seed.Defaults()
	if cfg.SeedFile != "" {
		if specs, err = seed.LoadFile(cfg.SeedFile); err != nil {
			return nil, multierr.Append(err, a.Close())
		}
	}

	opts := server.Options{
		Limit:         cfg.TenantLimit,
		Seeds:         specs,
		AppendTimeout: cfg.AppendTimeout,
		Logger:        log,
	}

	// Redis counters are also needed by setup, so they are built in every
	// mode where REDIS_URL is set.
	if cfg.RedisURL != "" {
		a.counter, err = ratelimit.NewCounter(cfg.RedisURL, a.store.CountUsage)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("init redis counter: %w", err), a.Close())
		}
		if err := a.counter.Ping(ctx); err != nil {
			return nil, multierr.Append(fmt.Errorf("connect redis: %w", err), a.Close())
		}
		opts.Counters = a.counter
	}

	if cfg.AdmissionMode == config.ModeStrict {
		opts.Reserver = a.reserver()
	}

	a.server = server.New(a.store, opts)
	return a, nil
}

func (a *app) reserver() admission.Reserver {
	if a.counter != nil {
		return a.counter
	}
	return a.store
}

func (a *app) Close() error {
	var err error
	if a.counter != nil {
		err = multierr.Append(err, a.counter.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	if a.logger != nil {
		// Sync fails on non-file outputs like stdout; nothing to do about it.
		_ = a.logger.Sync()
	}
	return err
}
