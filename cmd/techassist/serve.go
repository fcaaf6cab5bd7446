package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"techassist/internal/adapter/gateway"
	"techassist/internal/infra/logger"
	"techassist/internal/infra/middleware"
)

func runServe(flags cliFlags, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, flags, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	if err := a.orch.Registry().Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent registry: %w", err)
	}

	opts := gateway.Options{
		Addr:    a.cfg.Gateway.Addr,
		Version: version,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMin: a.cfg.Gateway.RequestsPerMin,
			BurstSize:      a.cfg.Gateway.BurstSize,
			TrustedProxies: a.cfg.Gateway.TrustedProxies,
		},
		MetricsPath: a.cfg.Metrics.Path,
	}
	if a.metrics != nil {
		opts.Metrics = a.metrics.Handler()
	}
	srv := gateway.NewServer(a.orch, gateway.AuthFromConfig(a.cfg.Gateway.Tokens), opts, logger.Component(a.logger, "gateway"))

	a.logger.Info("techassist starting", "version", version, "addr", a.cfg.Gateway.Addr)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("techassist stopped")
	return nil
}
