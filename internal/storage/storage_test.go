package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app_reviews/internal/shared"
	"app_reviews/internal/storage"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := shared.Config{StoreDriver: storage.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "r.db")}

	st, closeFn, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	ok, err := st.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := storage.Open(context.Background(), shared.Config{StoreDriver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestOpen_MySQLUnreachableHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := storage.Open(ctx, shared.Config{
		StoreDriver: storage.DriverMySQL,
		MySQLDSN:    "root:root@tcp(127.0.0.1:1)/reviews?parseTime=true&loc=UTC&timeout=100ms",
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
