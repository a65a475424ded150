package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/cartrecovery/internal/bootstrap"
	"github.com/angelmondragon/cartrecovery/internal/cron"
	"github.com/angelmondragon/cartrecovery/pkg/metrics"
)

const minLockTTL = time.Minute

func main() {
	cfg, logg, err := bootstrap.LoadConfig("cron-worker", os.Stdout)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Open(ctx, cfg, logg, bootstrap.Options{Events: true})
	if err != nil {
		logg.Error(ctx, "failed to bootstrap dependencies", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := res.Close(closeCtx); err != nil {
			logg.Error(closeCtx, "error closing dependencies", err)
		}
	}()

	cartService, err := res.CartService()
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	var lock cron.Lock = &cron.LocalLock{}
	if res.Redis != nil {
		lock, err = cron.NewRedisLock(res.Redis, cron.SweepLockName, max(2*cfg.Cart.SweepInterval, minLockTTL))
		if err != nil {
			logg.Error(ctx, "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured, sweep lock is process local")
	}

	sweepJob, err := cron.NewCartSweepJob(cron.CartSweepJobParams{
		Logger:  logg,
		Service: cartService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart sweep job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(res.Registry),
		Interval: cfg.Cart.SweepInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
