package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/angelmondragon/cartrecovery/internal/bootstrap"
	"github.com/angelmondragon/cartrecovery/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := cli.NewRootCommand(openBackend)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "cartctl:", err)
		os.Exit(1)
	}
}

// openBackend connects to the configured store. Events fire through the same
// sinks the API uses so an operator sweep notifies the email workflow.
func openBackend(ctx context.Context) (*cli.Env, error) {
	cfg, logg, err := bootstrap.LoadConfig("cartctl", os.Stderr)
	if err != nil {
		return nil, err
	}
	res, err := bootstrap.Open(ctx, cfg, logg, bootstrap.Options{Events: true})
	if err != nil {
		return nil, err
	}
	svc, err := res.CartService()
	if err != nil {
		_ = res.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return &cli.Env{
		Backend:  svc,
		Currency: cfg.Cart.Currency,
		Close: func() error {
			return res.Close(context.WithoutCancel(ctx))
		},
	}, nil
}
