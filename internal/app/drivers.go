package app

import (
	"context"

	"github.com/quilang-hardware/hardy/internal/config"
	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/store/memstore"
	"github.com/quilang-hardware/hardy/internal/store/postgres"
	"github.com/quilang-hardware/hardy/internal/store/sqlite"
)

// RegisterStoreDrivers wires the memory, PostgreSQL and SQLite store drivers
// into reg. The memory driver starts with the default inventory.
func RegisterStoreDrivers(reg *config.Registry) {
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (store.Store, error) {
		return memstore.New(store.DefaultDataset()), nil
	})
	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
		return postgres.New(ctx, sc.DSN,
			postgres.WithMigrate(sc.Migrate),
			postgres.WithMaxConns(sc.MaxConns),
		)
	})
	reg.RegisterStore(config.StoreSQLite, func(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
		return sqlite.Open(ctx, sc.DSN)
	})
}
