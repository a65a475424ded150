package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

type cartSweeper interface {
	SweepAt(ctx context.Context, now time.Time) ([]carts.Transition, error)
	StatsAt(ctx context.Context, now time.Time) (carts.Stats, error)
}

type CartSweepJobParams struct {
	Logger  *logger.Logger
	Service cartSweeper
	Now     func() time.Time
}

// NewCartSweepJob builds the job that applies time-based transitions and then
// refreshes the session snapshot gauges.
func NewCartSweepJob(params CartSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("cart service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &cartSweepJob{logg: params.Logger, service: params.Service, now: now}, nil
}

type cartSweepJob struct {
	logg    *logger.Logger
	service cartSweeper
	now     func() time.Time
}

func (j *cartSweepJob) Name() string { return "cart-sweep" }

func (j *cartSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	transitions, err := j.service.SweepAt(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep carts: %w", err))
	} else {
		abandoned, expired := countTransitions(transitions)
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"abandoned": abandoned,
			"expired":   expired,
		}), "cart sweep applied")
	}

	if _, err := j.service.StatsAt(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("refresh cart stats: %w", err))
	}
	return multierr.Combine(errs...)
}

func countTransitions(transitions []carts.Transition) (abandoned, expired int) {
	for _, t := range transitions {
		switch t.To {
		case enums.CartSessionStateAbandoned:
			abandoned++
		case enums.CartSessionStateExpired:
			expired++
		}
	}
	return abandoned, expired
}
