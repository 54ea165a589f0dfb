package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.SeedOnStart {
		seeded, err := a.server.Reseeder().SeedIfEmpty(ctx)
		if err != nil {
			return err
		}
		if seeded {
			a.logger.Info("seeded empty database")
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + a.cfg.ServerPort,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting",
			zap.String("port", a.cfg.ServerPort),
			zap.Int64("tenant_limit", a.cfg.TenantLimit),
			zap.String("admission_mode", a.cfg.AdmissionMode),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
