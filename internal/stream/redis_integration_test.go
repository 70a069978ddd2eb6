package stream

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to the instance named by STREAMCHAT_TEST_REDIS_ADDR
// and wipes the stream keys. Skipped when the variable is unset.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("STREAMCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STREAMCHAT_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Del(ctx, settingsKey, viewersKey, maxViewersKey).Err())
	require.NoError(t, client.Close())

	r, err := NewRedis(ctx, addr, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisSeedsDefaultSettings(t *testing.T) {
	r := newTestRedis(t)

	got, err := r.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), got)
}

func TestRedisSettingsRoundtrip(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	want := Settings{
		ChatEnabled:      true,
		ModerateMessages: true,
		SlowMode:         true,
		SlowModeDelay:    30 * time.Second,
	}
	require.NoError(t, r.UpdateSettings(ctx, want))

	got, err := r.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRedisViewerCounters(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	n, err := r.DecViewers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	for i := int64(1); i <= 3; i++ {
		n, err = r.IncViewers(ctx)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	_, err = r.DecViewers(ctx)
	require.NoError(t, err)

	counts, err := r.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Viewers)
	require.EqualValues(t, 3, counts.MaxViewers)
}
