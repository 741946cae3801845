// Package dbtest prepares a migrated Postgres database for repository tests.
// Tests are skipped unless TEST_DATABASE_URL points at a disposable database.
package dbtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"github.com/galepedia/galepedia/internal/platform/db"
)

// Pool connects to TEST_DATABASE_URL, applies the migrations and empties
// every table. The pool is closed when the test ends.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	v := viper.New()
	v.AutomaticEnv()
	url := v.GetString("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 4, 1, "UTC")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, MigrationsDir()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE history_log, patient, appointment`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

// MigrationsDir locates the migrations directory of the module.
func MigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	// internal/platform/db/dbtest -> module root
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "..", "migrations")
}
