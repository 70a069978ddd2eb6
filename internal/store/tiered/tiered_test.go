package tiered

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/finlive/streamchat-server/internal/store"
	"github.com/finlive/streamchat-server/internal/store/fastcache"
	"github.com/finlive/streamchat-server/internal/store/sqlite"
)

func newTestStore(t *testing.T, withCache bool) (*Store, *fastcache.Cache) {
	t.Helper()
	logger := zerolog.Nop()

	durable, err := sqlite.New(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)

	var cache *fastcache.Cache
	if withCache {
		cache, err = fastcache.New("", time.Hour, &logger)
		require.NoError(t, err)
	}

	s := New(durable, cache, &logger)
	t.Cleanup(func() { _ = s.Close() })
	return s, cache
}

func TestAppendAssignsIdentifierAndTimestamp(t *testing.T) {
	s, _ := newTestStore(t, true)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	got, err := s.Append(context.Background(), store.Message{Body: "  hello  ", Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, got.ID)
	require.Equal(t, "hello", got.Body)
	require.Equal(t, store.DefaultRoom, got.Room)
	require.True(t, at.Equal(got.CreatedAt))
}

func TestAppendRejectsInvalidBody(t *testing.T) {
	s, _ := newTestStore(t, true)
	ctx := context.Background()

	for _, body := range []string{"", "   \n\t  "} {
		_, err := s.Append(ctx, store.Message{Body: body, Username: "alice"})
		require.ErrorIs(t, err, store.ErrInvalidBody, "body %q", body)
	}

	long := make([]rune, store.MaxBodyLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := s.Append(ctx, store.Message{Body: string(long), Username: "alice"})
	require.ErrorIs(t, err, store.ErrInvalidBody)
}

func TestRecentPrefersCache(t *testing.T) {
	s, cache := newTestStore(t, true)
	ctx := context.Background()

	// Seeded only into the fast tier, so a cache-served read is observable.
	require.NoError(t, cache.Put(store.Message{
		ID:        "cache-only",
		Room:      store.DefaultRoom,
		Body:      "from the fast tier",
		Username:  "alice",
		CreatedAt: time.Now(),
	}))

	msgs, err := s.Recent(ctx, store.DefaultRoom, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "cache-only", msgs[0].ID)
}

func TestRecentFallsBackToDurable(t *testing.T) {
	s, _ := newTestStore(t, false)
	ctx := context.Background()

	appended, err := s.Append(ctx, store.Message{Body: "durable only", Username: "alice"})
	require.NoError(t, err)

	msgs, err := s.Recent(ctx, store.DefaultRoom, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, appended.ID, msgs[0].ID)
}

func TestSoftDeleteHidesEverywhere(t *testing.T) {
	s, _ := newTestStore(t, true)
	ctx := context.Background()

	appended, err := s.Append(ctx, store.Message{Body: "going away", Username: "alice"})
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, appended.ID, "mod"))

	msgs, err := s.Recent(ctx, store.DefaultRoom, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)

	count, err := s.Count(ctx, store.DefaultRoom, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestSoftDeleteUnknown(t *testing.T) {
	s, _ := newTestStore(t, true)
	require.ErrorIs(t, s.SoftDelete(context.Background(), "ghost", "mod"), store.ErrNotFound)
}

func TestListAndStats(t *testing.T) {
	s, _ := newTestStore(t, true)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		_, err := s.Append(ctx, store.Message{Body: body, Username: "alice"})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	msgs, total, err := s.List(ctx, store.DefaultRoom, 2, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[0].Body)
	require.Equal(t, "three", msgs[1].Body)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, st.Total)
	require.EqualValues(t, 3, st.Today)
	require.EqualValues(t, 0, st.Deleted)
}
