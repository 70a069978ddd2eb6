// Package sqlite is the durable message tier: the system of record for
// every accepted message.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finlive/streamchat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room       TEXT NOT NULL,
	body       TEXT NOT NULL,
	username   TEXT NOT NULL,
	is_admin   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	deleted_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at);
`

// Store implements the durable tier on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts a message. Identifier and timestamp must already be set by
// the caller (the tiered facade assigns them).
func (s *Store) Append(ctx context.Context, msg store.Message) (store.Message, error) {
	query := `
		INSERT INTO messages (id, room, body, username, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Room, msg.Body, msg.Username, msg.IsAdmin, msg.CreatedAt.UnixNano())
	if err != nil {
		return store.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Recent returns up to limit non-deleted messages, oldest first.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]store.Message, error) {
	limit = store.ClampLimit(limit)
	query := `
		SELECT id, room, body, username, is_admin, created_at, deleted, deleted_by
		FROM messages
		WHERE room = ? AND deleted = 0
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// List pages through non-deleted messages, oldest first.
func (s *Store) List(ctx context.Context, room string, limit, skip int) ([]store.Message, int64, error) {
	limit = store.ClampLimit(limit)
	if skip < 0 {
		skip = 0
	}

	query := `
		SELECT id, room, body, username, is_admin, created_at, deleted, deleted_by
		FROM messages
		WHERE room = ? AND deleted = 0
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	reverse(msgs)

	total, err := s.Count(ctx, room, false)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// SoftDelete marks a message deleted, keeping the row.
func (s *Store) SoftDelete(ctx context.Context, id, deletedBy string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted = 1, deleted_by = ? WHERE id = ?`, deletedBy, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Count reports the number of messages in the room.
func (s *Store) Count(ctx context.Context, room string, includeDeleted bool) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE room = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, room).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Stats aggregates total, today and deleted counts across rooms.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var st store.Stats
	query := `
		SELECT
			COUNT(*) FILTER (WHERE deleted = 0),
			COUNT(*) FILTER (WHERE deleted = 0 AND created_at >= ?),
			COUNT(*) FILTER (WHERE deleted = 1)
		FROM messages
	`
	err := s.db.QueryRowContext(ctx, query, midnight.UnixNano()).
		Scan(&st.Total, &st.Today, &st.Deleted)
	if err != nil {
		return store.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var msgs []store.Message
	for rows.Next() {
		var (
			msg   store.Message
			nanos int64
		)
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Body, &msg.Username,
			&msg.IsAdmin, &nanos, &msg.Deleted, &msg.DeletedBy); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, nanos)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func reverse(msgs []store.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// Get retrieves a single message by id, deleted or not.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	query := `
		SELECT id, room, body, username, is_admin, created_at, deleted, deleted_by
		FROM messages
		WHERE id = ?
	`
	var (
		msg   store.Message
		nanos int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&msg.ID, &msg.Room, &msg.Body,
		&msg.Username, &msg.IsAdmin, &nanos, &msg.Deleted, &msg.DeletedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, store.ErrNotFound
		}
		return store.Message{}, fmt.Errorf("query message: %w", err)
	}
	msg.CreatedAt = time.Unix(0, nanos)
	return msg, nil
}
