package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finlive/streamchat-server/internal/metrics"
)

// Sender delivers one event to the peer behind a connection. It returns a
// *DeliveryError when the attempt fails.
type Sender func(ctx context.Context, ev Event) error

// Connection is one live duplex channel as the core sees it. The record is
// owned exclusively by the Registry; the expiry hint is used only for
// garbage-collecting abandoned rows, never for liveness decisions.
type Connection struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	send      Sender
}

// NewConnection builds a connection record around a delivery function.
func NewConnection(id string, ttl time.Duration, send Sender) *Connection {
	now := time.Now()
	return &Connection{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		send:      send,
	}
}

// Send delivers an event to the peer.
func (c *Connection) Send(ctx context.Context, ev Event) error {
	return c.send(ctx, ev)
}

// Registry tracks every currently-open connection. It is the ground truth
// for "who is online". A concurrent map keeps unrelated connections from
// serializing on one lock.
type Registry struct {
	conns sync.Map // id -> *Connection
	size  atomic.Int64
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register inserts a connection. Re-registering an existing id is a no-op;
// the return value reports whether the connection was newly added.
func (r *Registry) Register(conn *Connection) bool {
	if _, loaded := r.conns.LoadOrStore(conn.ID, conn); loaded {
		return false
	}
	metrics.OpenConnections.Set(float64(r.size.Add(1)))
	return true
}

// Unregister removes a connection by id. Unknown ids are a no-op, which
// supports at-least-once disconnect signaling. The return value reports
// whether an entry was actually removed.
func (r *Registry) Unregister(id string) bool {
	if _, loaded := r.conns.LoadAndDelete(id); !loaded {
		return false
	}
	metrics.OpenConnections.Set(float64(r.size.Add(-1)))
	return true
}

// Snapshot returns a point-in-time copy of the active set, in no particular
// order. Membership changes after the snapshot is taken are not reflected.
func (r *Registry) Snapshot() []*Connection {
	conns := make([]*Connection, 0, r.size.Load())
	r.conns.Range(func(_, value any) bool {
		conns = append(conns, value.(*Connection))
		return true
	})
	return conns
}

// Len returns the current size of the active set.
func (r *Registry) Len() int {
	return int(r.size.Load())
}
