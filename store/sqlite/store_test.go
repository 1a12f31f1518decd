package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/store/sqlite"
	"github.com/xraph/pullpay/store/storetest"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	sdb := sqlitedriver.New()
	dsn := "file:" + filepath.Join(t.TempDir(), "pullpay.db")
	if err := sdb.Open(context.Background(), dsn, driver.WithPoolSize(1)); err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		t.Fatalf("grove.Open: %v", err)
	}

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for i := 0; i < 2; i++ {
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
