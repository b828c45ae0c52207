//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textlens/textlens/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestLibsqlKV(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + filepath.Join(t.TempDir(), "textlens.db"),
	}

	kv, err := OpenKV(ctx, cfg)
	require.NoError(t, err)
	s := kv.(*Store)
	t.Cleanup(func() { _ = s.Close() })

	require.Equal(t, 1, s.DB.Stats().MaxOpenConnections)

	var busyTimeout int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)

	testKVContract(t, s)
}
