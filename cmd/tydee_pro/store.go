package main

import (
	"context"
	"fmt"

	"github.com/tydee/tydee-pro/internal/config"
	"github.com/tydee/tydee-pro/internal/db"
	"github.com/tydee/tydee-pro/internal/db/memory"
	"github.com/tydee/tydee-pro/internal/lock"
	"github.com/tydee/tydee-pro/internal/marketplace"
)

// openStore connects to PostgreSQL, or returns a seeded in-memory store when
// inMemory is set. The returned func releases the store.
func openStore(ctx context.Context, cfg *config.Config, inMemory bool) (marketplace.Store, func(), error) {
	if inMemory {
		return memory.New(memory.DefaultServices...), func() {}, nil
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required (or use --memory)")
	}
	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return database, database.Close, nil
}

// openLocker connects the sweep lock backend. Without a Redis URL it returns nil
// and the sweeper runs unguarded.
func openLocker(ctx context.Context, cfg *config.Config) (marketplace.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, func() {}, nil
	}
	locker, rdb, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return locker, func() { _ = rdb.Close() }, nil
}
