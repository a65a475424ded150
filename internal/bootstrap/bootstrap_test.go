package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		Cart: config.CartConfig{
			AbandonThreshold: time.Hour,
			ExpireThreshold:  30 * 24 * time.Hour,
			Retention:        config.RetentionKeep,
			Currency:         "USD",
			Store:            config.StoreMemory,
			InlineSweep:      true,
		},
		Eventing: config.EventingConfig{AsyncBuffer: 8},
	}
}

func TestOpenMemoryStoreNeedsNoClients(t *testing.T) {
	res, err := Open(context.Background(), memoryConfig(), logger.Nop(), Options{Events: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer res.Close(context.Background())

	if res.DB != nil || res.Redis != nil || res.PubSub != nil || res.BigQuery != nil {
		t.Fatalf("expected no external clients, got %+v", res)
	}
	store, err := res.Store()
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := store.(*carts.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestCartServiceTracksThroughMemoryStore(t *testing.T) {
	res, err := Open(context.Background(), memoryConfig(), logger.Nop(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer res.Close(context.Background())

	svc, err := res.CartService()
	if err != nil {
		t.Fatalf("CartService: %v", err)
	}
	out, err := svc.Track(context.Background(), carts.TrackInput{
		Identity: "a@b.com",
		Items:    []carts.RawItem{{ProductID: "p1", Name: "Widget", UnitPrice: 1000, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if out.Session.TotalValue() != 2000 {
		t.Fatalf("expected total 2000, got %d", out.Session.TotalValue())
	}

	families, err := res.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected cart metrics registered")
	}
}

func TestSQLStoreRequiresDatabase(t *testing.T) {
	cfg := memoryConfig()
	res := &Resources{Config: cfg, Logger: logger.Nop()}
	cfg.Cart.Store = config.StoreSQL
	if _, err := res.Store(); err == nil {
		t.Fatal("expected error without database client")
	}
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	res := &Resources{}
	res.addCloser(func(context.Context) error { order = append(order, 1); return nil })
	res.addCloser(func(context.Context) error { order = append(order, 2); return nil })
	if err := res.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
}
