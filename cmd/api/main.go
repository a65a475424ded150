package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/cartrecovery/api"
	"github.com/angelmondragon/cartrecovery/api/controllers"
	"github.com/angelmondragon/cartrecovery/api/routes"
	"github.com/angelmondragon/cartrecovery/internal/bootstrap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, logg, err := bootstrap.LoadConfig("api", os.Stdout)
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
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

	ready := map[string]controllers.Pinger{}
	if res.DB != nil {
		ready["db"] = res.DB
	}
	if res.Redis != nil {
		ready["redis"] = res.Redis
	}
	if res.PubSub != nil {
		ready["pubsub"] = res.PubSub
	}
	if res.BigQuery != nil {
		ready["bigquery"] = res.BigQuery
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"addr":  addr,
		"store": cfg.Cart.Store,
	})

	server := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			Carts:    cartService,
			Gatherer: res.Registry,
			Ready:    ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
}
