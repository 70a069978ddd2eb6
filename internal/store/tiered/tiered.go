// Package tiered merges the durable sqlite tier and the badger fast tier
// behind the single store.Store contract. Appends are acknowledged only
// after the durable tier commits; the cache write is best-effort. Reads
// prefer the cache and fall back transparently.
package tiered

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/store"
	"github.com/finlive/streamchat-server/internal/store/fastcache"
	"github.com/finlive/streamchat-server/internal/store/sqlite"
	"github.com/finlive/streamchat-server/internal/utils"
)

// Store is the two-tier message store.
type Store struct {
	durable *sqlite.Store
	cache   *fastcache.Cache
	log     *zerolog.Logger
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New builds the tiered store. cache may be nil, leaving only the durable tier.
func New(durable *sqlite.Store, cache *fastcache.Cache, logger *zerolog.Logger) *Store {
	return &Store{
		durable: durable,
		cache:   cache,
		log:     logger,
		now:     time.Now,
	}
}

// Append validates, assigns identifier and timestamp when absent, and
// persists the message. The cache write happens after the durable commit
// and never fails the append.
func (s *Store) Append(ctx context.Context, msg store.Message) (store.Message, error) {
	body, err := store.ValidateBody(msg.Body)
	if err != nil {
		return store.Message{}, err
	}
	msg.Body = body

	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.Room == "" {
		msg.Room = store.DefaultRoom
	}
	msg.Deleted = false
	msg.DeletedBy = ""

	stored, err := s.durable.Append(ctx, msg)
	if err != nil {
		return store.Message{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.Put(stored); err != nil {
			s.log.Warn().Err(err).Str("message_id", stored.ID).Msg("fast tier write failed")
		}
	}

	return stored, nil
}

// Recent serves from the fast tier when it has data for the room, otherwise
// from the durable tier.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]store.Message, error) {
	if s.cache != nil {
		msgs, ok, err := s.cache.Recent(room, limit)
		if err != nil {
			s.log.Warn().Err(err).Msg("fast tier read failed")
		} else if ok {
			return msgs, nil
		}
	}

	msgs, err := s.durable.Recent(ctx, room, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return msgs, nil
}

// List pages through the durable tier; pagination never consults the cache.
func (s *Store) List(ctx context.Context, room string, limit, skip int) ([]store.Message, int64, error) {
	msgs, total, err := s.durable.List(ctx, room, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return msgs, total, nil
}

// SoftDelete hides the message in the durable tier and evicts it from the
// fast tier so history reads stop returning it immediately.
func (s *Store) SoftDelete(ctx context.Context, id, deletedBy string) error {
	if err := s.durable.SoftDelete(ctx, id, deletedBy); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(id); err != nil {
			s.log.Warn().Err(err).Str("message_id", id).Msg("fast tier eviction failed")
		}
	}
	return nil
}

// Count reports message counts from the durable tier.
func (s *Store) Count(ctx context.Context, room string, includeDeleted bool) (int64, error) {
	return s.durable.Count(ctx, room, includeDeleted)
}

// Stats aggregates counts from the durable tier.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	return s.durable.Stats(ctx)
}

// Close closes both tiers.
func (s *Store) Close() error {
	var firstErr error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.durable.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
