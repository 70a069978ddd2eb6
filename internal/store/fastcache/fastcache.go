// Package fastcache is the short-retention message tier. Entries expire via
// badger's native TTL; losing the whole cache only costs read latency, the
// durable tier remains the system of record.
package fastcache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/store"
)

// Keys are "msg:{room}:{zero-padded unix-nanos}:{id}" so a reverse prefix
// scan yields newest-first, with the id breaking nanosecond ties. A second
// "msgid:{id}" entry points back at the message key so soft-deletes can
// evict by id alone.
const (
	msgPrefix = "msg:"
	idPrefix  = "msgid:"
)

// Cache is a badger-backed recent-message index.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
	log *zerolog.Logger
}

// New opens the cache at path. An empty path keeps the cache in memory,
// which tests rely on.
func New(path string, ttl time.Duration, logger *zerolog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{db: db, ttl: ttl, log: logger}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores a message with the configured TTL.
func (c *Cache) Put(msg store.Message) error {
	key := messageKey(msg)
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, value)
		idx := badger.NewEntry([]byte(idPrefix+msg.ID), key)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
			idx = idx.WithTTL(c.ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.SetEntry(idx)
	})
}

// Recent returns up to limit messages for the room, oldest first. ok is
// false when the cache holds nothing for the room and the caller should
// consult the durable tier instead.
func (c *Cache) Recent(room string, limit int) ([]store.Message, bool, error) {
	limit = store.ClampLimit(limit)
	prefix := []byte(msgPrefix + room + ":")

	var msgs []store.Message
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek position past every real key.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(msgs) < limit; it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg store.Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return fmt.Errorf("unmarshal message: %w", err)
				}
				msgs = append(msgs, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(msgs) == 0 {
		return nil, false, nil
	}
	reverse(msgs)
	return msgs, true, nil
}

// Delete evicts a message by id. Unknown ids are a no-op: the entry may
// already have expired.
func (c *Cache) Delete(id string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete([]byte(idPrefix + id))
	})
}

func messageKey(msg store.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, msg.Room, msg.CreatedAt.UnixNano(), msg.ID))
}

func reverse(msgs []store.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
