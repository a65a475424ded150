// Package bootstrap opens the clients shared by the cart recovery binaries
// and assembles the cart service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cartrecovery/internal/analytics"
	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/internal/notify"
	"github.com/angelmondragon/cartrecovery/pkg/bigquery"
	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/db"
	"github.com/angelmondragon/cartrecovery/pkg/events/idempotency"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
	"github.com/angelmondragon/cartrecovery/pkg/metrics"
	"github.com/angelmondragon/cartrecovery/pkg/migrate"
	"github.com/angelmondragon/cartrecovery/pkg/pubsub"
	"github.com/angelmondragon/cartrecovery/pkg/redis"
)

// LoadConfig reads .env when present, parses the environment and returns a
// logger configured from it. Log lines go to out, stdout when nil.
func LoadConfig(serviceName string, out io.Writer) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: serviceName, Output: out})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, err
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Output:      out,
	})
	return cfg, logg, nil
}

// Options selects which optional integrations Open connects.
type Options struct {
	// Events turns on the Pub/Sub and BigQuery listeners when configured.
	Events bool
	// Redis connects Redis when configured even if Events is false.
	Redis bool
}

// Resources owns every client a process opened.
type Resources struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	DB       *db.Client
	Redis    *redis.Client
	PubSub   *pubsub.Client
	BigQuery *bigquery.Client

	closers []func(ctx context.Context) error
}

// Open connects the database, unless the memory store is selected, and the
// optional integrations requested by opts. On error every client opened so far
// is closed.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts Options) (res *Resources, err error) {
	if cfg == nil || logg == nil {
		return nil, errors.New("config and logger required")
	}
	res = &Resources{Config: cfg, Logger: logg, Registry: newRegistry()}
	defer func() {
		if err != nil {
			err = multierr.Append(err, res.Close(context.WithoutCancel(ctx)))
			res = nil
		}
	}()

	if !cfg.Cart.UsesMemoryStore() {
		res.DB, err = db.New(ctx, cfg.DB, logg)
		if err != nil {
			return res, fmt.Errorf("bootstrap database: %w", err)
		}
		res.addCloser(func(context.Context) error { return res.DB.Close() })
		if err = migrate.MaybeRunDev(ctx, cfg, logg, res.DB); err != nil {
			return res, fmt.Errorf("dev migrations: %w", err)
		}
	}

	if (opts.Events || opts.Redis) && cfg.Redis.Enabled() {
		res.Redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return res, fmt.Errorf("bootstrap redis: %w", err)
		}
		res.addCloser(func(context.Context) error { return res.Redis.Close() })
	}

	if !opts.Events {
		return res, nil
	}
	if cfg.PubSub.CartEventsTopic != "" {
		res.PubSub, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return res, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		res.addCloser(func(context.Context) error { return res.PubSub.Close() })
	}
	if cfg.BigQuery.Enabled() {
		res.BigQuery, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return res, fmt.Errorf("bootstrap bigquery: %w", err)
		}
		res.addCloser(func(context.Context) error { return res.BigQuery.Close() })
	}
	return res, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (r *Resources) addCloser(fn func(ctx context.Context) error) {
	r.closers = append(r.closers, fn)
}

// Close releases resources in reverse opening order.
func (r *Resources) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i](ctx))
	}
	r.closers = nil
	return err
}

// Store returns the session store selected by CARTRECOVERY_STORE.
func (r *Resources) Store() (carts.Store, error) {
	if r.Config.Cart.UsesMemoryStore() {
		return carts.NewMemoryStore(), nil
	}
	if r.DB == nil {
		return nil, errors.New("database client not opened")
	}
	return carts.NewSQLStore(carts.SQLStoreParams{
		DB:     r.DB,
		Logger: r.Logger,
		Strict: r.Config.Cart.StrictInvariants,
	})
}

// Dispatcher builds the event emitter with a queued listener per configured
// sink. The listeners drain on Close.
func (r *Resources) Dispatcher() (*carts.Dispatcher, error) {
	cfg := r.Config
	dispatcher := carts.NewDispatcher(r.Logger)

	if r.PubSub != nil {
		params := notify.ListenerParams{
			Publisher: r.PubSub,
			Topic:     r.PubSub.CartEventsTopic(),
			Currency:  cfg.Cart.Currency,
			Logger:    r.Logger,
		}
		if r.Redis != nil {
			manager, err := idempotency.NewManager(r.Redis, cfg.Eventing.IdempotencyTTL)
			if err != nil {
				return nil, fmt.Errorf("idempotency manager: %w", err)
			}
			params.Idempotency = manager
		}
		listener, err := notify.NewPubSubListener(params)
		if err != nil {
			return nil, fmt.Errorf("pubsub listener: %w", err)
		}
		r.register(dispatcher, listener, nil)
	}

	if r.BigQuery != nil {
		writer, err := analytics.NewWriter(r.BigQuery, analytics.WriterConfig{Table: r.BigQuery.CartEventsTable()})
		if err != nil {
			return nil, fmt.Errorf("analytics writer: %w", err)
		}
		listener, err := analytics.NewListener(analytics.ListenerParams{
			Writer:   writer,
			Currency: cfg.Cart.Currency,
			Logger:   r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("analytics listener: %w", err)
		}
		r.register(dispatcher, listener, listener.Close)
	}
	return dispatcher, nil
}

func (r *Resources) register(d *carts.Dispatcher, l carts.Listener, flush func(ctx context.Context) error) {
	async := carts.NewAsyncListener(l, r.Config.Eventing.AsyncBuffer, r.Logger)
	d.Register(async)
	r.addCloser(func(ctx context.Context) error {
		err := async.Close(ctx)
		if flush != nil {
			err = multierr.Append(err, flush(ctx))
		}
		return err
	})
}

// CartService wires the store, dispatcher and Prometheus recorder into a
// carts.Service.
func (r *Resources) CartService() (*carts.Service, error) {
	store, err := r.Store()
	if err != nil {
		return nil, err
	}
	dispatcher, err := r.Dispatcher()
	if err != nil {
		return nil, err
	}
	policy, err := carts.PolicyFromConfig(r.Config.Cart)
	if err != nil {
		return nil, err
	}
	return carts.NewService(carts.ServiceParams{
		Store:       store,
		Emitter:     dispatcher,
		Logger:      r.Logger,
		Policy:      policy,
		InlineSweep: r.Config.Cart.InlineSweep,
		Metrics:     metrics.NewCartMetrics(r.Registry),
	})
}
