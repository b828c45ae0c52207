package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textlens/textlens/internal/core/store"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func TestGetRespectsTTL(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := New(kv)
	key := c.Key("summarize", map[string]string{"text": "hello"})

	require.NoError(t, c.Put(ctx, key, json.RawMessage(`{"summary":"hi"}`), epoch))

	t.Run("FreshEntryHits", func(t *testing.T) {
		value, ok, err := c.Get(ctx, key, epoch.Add(DefaultTTL-time.Millisecond))
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"summary":"hi"}`, string(value))
	})

	t.Run("ExpiredAtExactTTL", func(t *testing.T) {
		_, ok, err := c.Get(ctx, key, epoch.Add(DefaultTTL))
		require.NoError(t, err)
		assert.False(t, ok)

		// The expired entry is purged.
		_, present, err := kv.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, present)

		// A second lookup at the same instant is still an absent, error-free miss.
		value, ok, err := c.Get(ctx, key, epoch.Add(DefaultTTL))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, value)
	})
}

func TestSubMillisecondAgeStaysFresh(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemory())
	key := c.Key("qa", map[string]string{"text": "doc", "question": "q"})
	storedAt := epoch.Add(900 * time.Microsecond)

	require.NoError(t, c.Put(ctx, key, json.RawMessage(`{"answer":"a"}`), storedAt))

	_, ok, err := c.Get(ctx, key, storedAt.Add(DefaultTTL-500*time.Microsecond))
	require.NoError(t, err)
	assert.True(t, ok, "entry younger than the TTL must hit")

	_, ok, err = c.Get(ctx, key, storedAt.Add(DefaultTTL))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwritesAndRestampsEntry(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemory(), WithTTL(time.Hour))
	key := c.Key("sentiment", map[string]string{"text": "x"})

	require.NoError(t, c.Put(ctx, key, json.RawMessage(`1`), epoch))
	require.NoError(t, c.Put(ctx, key, json.RawMessage(`2`), epoch.Add(50*time.Minute)))

	value, ok, err := c.Get(ctx, key, epoch.Add(90*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(value))
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	c := New(store.NewMemory())
	require.Error(t, c.Put(context.Background(), "api_cache_x", json.RawMessage(`{nope`), epoch))
}

func TestCorruptedEntryIsPurgedAsMiss(t *testing.T) {
	collector := setupTelemetry(t)
	ctx := context.Background()
	kv := store.NewMemory()
	c := New(kv)

	for _, raw := range []string{`not json`, `{"data":1}`, `{"stored_at":"2024-03-01T12:00:00Z"}`, `{"data":1,"timestamp":1700000000000}`} {
		require.NoError(t, kv.Set(ctx, "api_cache_bad", raw))

		value, ok, err := c.Get(ctx, "api_cache_bad", epoch)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, value)

		_, present, err := kv.Get(ctx, "api_cache_bad")
		require.NoError(t, err)
		assert.False(t, present, "corrupted entry %q should be removed", raw)
	}

	assert.Equal(t, 4, collector.CountMetricsByName(metrics.DispatchCacheLookupsTotal))
}

func TestClearAllOnlyTouchesNamespace(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := New(kv)

	require.NoError(t, c.Put(ctx, c.Key("summarize", map[string]string{"text": "a"}), json.RawMessage(`{}`), epoch))
	require.NoError(t, c.Put(ctx, c.Key("qa", map[string]string{"text": "a", "question": "q"}), json.RawMessage(`{}`), epoch))
	require.NoError(t, kv.Set(ctx, "history", `[]`))
	require.NoError(t, kv.Set(ctx, "api_cachex", `keep`))

	removed, err := c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := kv.ListKeysWithPrefix(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"history", "api_cachex"}, keys)

	removed, err = c.ClearAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPurgeExpiredIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := New(kv, WithTTL(time.Hour))

	require.NoError(t, c.Put(ctx, "api_cache_old", json.RawMessage(`1`), epoch))
	require.NoError(t, c.Put(ctx, "api_cache_new", json.RawMessage(`2`), epoch.Add(45*time.Minute)))
	require.NoError(t, kv.Set(ctx, "api_cache_broken", `{`))
	require.NoError(t, kv.Set(ctx, "unrelated", `{`))

	now := epoch.Add(time.Hour + time.Minute)

	stats, err := c.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 3, Live: 1, Expired: 1, Corrupt: 1, TTL: time.Hour}, stats)

	removed, err := c.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = c.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)

	keys, err := kv.ListKeysWithPrefix(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"api_cache_new", "unrelated"}, keys)
}

func TestRunJanitorSweeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		now = epoch
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	kv := store.NewMemory()
	c := New(kv, WithTTL(time.Minute), WithClock(clock))
	require.NoError(t, c.Put(ctx, "api_cache_k", json.RawMessage(`{}`), epoch))

	mu.Lock()
	now = epoch.Add(2 * time.Minute)
	mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return kv.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemory())
	require.NoError(t, c.Put(ctx, "api_cache_k", json.RawMessage(`{}`), epoch))
	require.NoError(t, c.Delete(ctx, "api_cache_k"))

	_, ok, err := c.Get(ctx, "api_cache_k", epoch)
	require.NoError(t, err)
	assert.False(t, ok)
}
