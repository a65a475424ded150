package carts

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/db"
	"github.com/angelmondragon/cartrecovery/pkg/migrate"
)

func startPostgres(t *testing.T) *db.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.WithDatabase("cartrecovery"),
		postgres.WithUsername("carts"),
		postgres.WithPassword("carts"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("postgres.Run: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	client, err := db.New(ctx, config.DBConfig{
		Driver:       config.DriverPostgres,
		DSN:          dsn,
		MaxOpenConns: 5,
	}, nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := migrate.RunEmbedded(migrateCtx, sqlDB, "up"); err != nil {
		t.Fatalf("goose up: %v", err)
	}
	return client
}

func TestPostgresStoreContract(t *testing.T) {
	client := startPostgres(t)
	contract := &StoreContractSuite{newStore: func(t *testing.T) Store {
		if err := client.DB().Exec("TRUNCATE cart_session_items, cart_sessions").Error; err != nil {
			t.Fatalf("truncate: %v", err)
		}
		store, err := NewSQLStore(SQLStoreParams{DB: client, Strict: true})
		if err != nil {
			t.Fatalf("NewSQLStore() error = %v", err)
		}
		return store
	}}
	runStoreSuite(t, contract)
}
