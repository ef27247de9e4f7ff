package database

import (
	"context"
	"fmt"
)

var (
	_ Database = (*PostgresDB)(nil)
	_ Database = (*MemoryDB)(nil)
)

// Open returns the store named by url: "memory" or a postgres connection string.
// Postgres schemas are migrated on open.
func Open(ctx context.Context, url string) (Database, error) {
	if url == "memory" {
		return NewMemoryDB(), nil
	}
	db, err := NewPostgresDB(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
