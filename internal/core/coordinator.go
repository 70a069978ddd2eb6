package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/metrics"
	"github.com/finlive/streamchat-server/internal/store"
	"github.com/finlive/streamchat-server/internal/stream"
)

// Session is one connection's identity as seen by the coordinator. Identity
// is nil for guests.
type Session struct {
	Conn     *Connection
	Identity *auth.Identity
}

// Authenticated reports whether the session carries a validated credential.
func (s *Session) Authenticated() bool {
	return s.Identity != nil
}

// Role returns the session's role; guests are viewers.
func (s *Session) Role() auth.Role {
	if s.Identity == nil {
		return auth.RoleViewer
	}
	return s.Identity.Role
}

// Username returns the display name, deriving a stable guest name from the
// connection id when no identity exists.
func (s *Session) Username() string {
	if s.Identity != nil && s.Identity.Username != "" {
		return s.Identity.Username
	}
	id := s.Conn.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "guest_" + id
}

// senderKey identifies the sender for slow-mode tracking: user id when
// authenticated, connection id otherwise. Anonymous senders are tracked
// too; exempting them would let the population slow mode targets bypass it.
func (s *Session) senderKey() string {
	if s.Identity != nil && s.Identity.UserID != "" {
		return s.Identity.UserID
	}
	return s.Conn.ID
}

// Coordinator orchestrates the per-connection lifecycle: connect, join,
// post, delete, disconnect. It owns the slow-mode bookkeeping and the
// viewer counter side effects; everything else happens through the
// registry, store, gate and fan-out contracts.
type Coordinator struct {
	registry *Registry
	store    store.Store
	stream   stream.Service
	fanout   *Fanout
	log      *zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastPost  map[string]time.Time
	lastSweep time.Time
}

// lastPostSweepInterval bounds how often the slow-mode table is swept for
// entries too old to influence a decision.
const lastPostSweepInterval = time.Minute

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(registry *Registry, st store.Store, sv stream.Service, fanout *Fanout, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		store:    st,
		stream:   sv,
		fanout:   fanout,
		log:      logger,
		now:      time.Now,
		lastPost: make(map[string]time.Time),
	}
}

// Connect moves a connection from Connecting to Open: register, bump the
// viewer counter, push the new count to everyone.
func (c *Coordinator) Connect(ctx context.Context, sess *Session) {
	if !c.registry.Register(sess.Conn) {
		return
	}
	if _, err := c.stream.IncViewers(ctx); err != nil {
		c.log.Warn().Err(err).Msg("viewer counter increment failed")
	}
	c.pushUserCount(ctx)
}

// Disconnect moves a connection to Closed. The signal may arrive more than
// once (explicit close plus pruning); only an actual removal decrements the
// viewer counter. Slow-mode state is left in place so reconnecting does not
// reset the window.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	if !c.registry.Unregister(connID) {
		return
	}
	if _, err := c.stream.DecViewers(ctx); err != nil {
		c.log.Warn().Err(err).Msg("viewer counter decrement failed")
	}
	c.pushUserCount(ctx)
}

// Join delivers recent history and the current viewer count privately to
// the requesting connection only.
func (c *Coordinator) Join(ctx context.Context, sess *Session) {
	history, err := c.store.Recent(ctx, store.DefaultRoom, store.DefaultRecentLimit)
	if err != nil {
		c.log.Error().Err(err).Msg("history read failed")
		c.sendPrivate(ctx, sess, errorEvent(ErrCodeStoreUnavailable, "history unavailable"))
		return
	}
	c.sendPrivate(ctx, sess, historyEvent(history))

	counts, err := c.stream.Counts(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("viewer count read failed")
		return
	}
	c.sendPrivate(ctx, sess, userCountEvent(counts.Viewers))
}

// Post runs the moderation gate and, when allowed, appends and broadcasts
// the message. Denials and failures are reported privately; they never
// close the connection and are never broadcast.
func (c *Coordinator) Post(ctx context.Context, sess *Session, text string) {
	settings, err := c.stream.Settings(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("stream settings read failed")
		c.sendPrivate(ctx, sess, errorEvent(ErrCodeStoreUnavailable, "stream settings unavailable"))
		return
	}

	now := c.now()
	decision := CheckPost(GateInput{
		Role:          sess.Role(),
		Authenticated: sess.Authenticated(),
		Settings:      settings,
		LastPost:      c.lastPostAt(sess.senderKey()),
		Now:           now,
	})

	if !decision.Allowed && !decision.Withhold {
		metrics.MessagesDenied.WithLabelValues(decision.Code).Inc()
		c.sendPrivate(ctx, sess, errorEvent(decision.Code, decision.Reason))
		return
	}

	msg, err := c.store.Append(ctx, store.Message{
		Room:     store.DefaultRoom,
		Body:     text,
		Username: sess.Username(),
		IsAdmin:  sess.Role().CanModerate(),
	})
	if err != nil {
		c.sendPrivate(ctx, sess, appendError(err))
		return
	}

	if decision.Withhold {
		// Accepted into the store but withheld from broadcast; the release
		// mechanism lives outside this core.
		metrics.MessagesDenied.WithLabelValues(decision.Code).Inc()
		c.sendPrivate(ctx, sess, errorEvent(decision.Code, decision.Reason))
		return
	}

	metrics.MessagesAccepted.Inc()
	c.markPosted(sess.senderKey(), now, settings.SlowModeDelay)
	c.broadcast(ctx, messageEvent(msg))
}

// Delete soft-deletes a message and broadcasts a deletion event carrying
// only the identifier. Role enforcement relies on the identity service's
// role claim.
func (c *Coordinator) Delete(ctx context.Context, sess *Session, messageID string) {
	if !sess.Role().CanModerate() {
		c.sendPrivate(ctx, sess, errorEvent(ErrCodePermissionDenied, "permission denied"))
		return
	}
	if messageID == "" {
		c.sendPrivate(ctx, sess, errorEvent(ErrCodeBadRequest, "missing message id"))
		return
	}

	deleterID := sess.Conn.ID
	if sess.Identity != nil {
		deleterID = sess.Identity.UserID
	}

	if err := c.store.SoftDelete(ctx, messageID, deleterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendPrivate(ctx, sess, errorEvent(ErrCodeMessageNotFound, "message not found"))
			return
		}
		c.log.Error().Err(err).Str("message_id", messageID).Msg("soft delete failed")
		c.sendPrivate(ctx, sess, errorEvent(ErrCodeStoreUnavailable, "delete failed"))
		return
	}

	c.broadcast(ctx, deletedEvent(messageID))
}

// DeleteByID is the REST-surface variant of Delete: same store mutation and
// broadcast, no originating connection to report back to.
func (c *Coordinator) DeleteByID(ctx context.Context, messageID, deleterID string) error {
	if err := c.store.SoftDelete(ctx, messageID, deleterID); err != nil {
		return err
	}
	c.broadcast(ctx, deletedEvent(messageID))
	return nil
}

// broadcast runs a fan-out pass and settles the bookkeeping for every
// connection it pruned: decrement the viewer counter and push the new
// count. Pushing may itself prune, so loop until the registry stops
// shrinking.
func (c *Coordinator) broadcast(ctx context.Context, ev Event) DeliveryReport {
	report := c.fanout.Broadcast(ctx, ev)

	pruned := report.Pruned
	for len(pruned) > 0 {
		for range pruned {
			if _, err := c.stream.DecViewers(ctx); err != nil {
				c.log.Warn().Err(err).Msg("viewer counter decrement failed")
			}
		}
		counts, err := c.stream.Counts(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("viewer count read failed")
			break
		}
		pruned = c.fanout.Broadcast(ctx, userCountEvent(counts.Viewers)).Pruned
	}

	return report
}

func (c *Coordinator) pushUserCount(ctx context.Context) {
	counts, err := c.stream.Counts(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("viewer count read failed")
		return
	}
	c.broadcast(ctx, userCountEvent(counts.Viewers))
}

// sendPrivate delivers an event to one connection only. A permanent
// failure closes the session through the normal disconnect path.
func (c *Coordinator) sendPrivate(ctx context.Context, sess *Session, ev Event) {
	err := sess.Conn.Send(ctx, ev)
	if err == nil {
		return
	}
	if isPermanent(err) {
		c.log.Info().Str("connection_id", sess.Conn.ID).Err(err).Msg("private delivery failed, closing session")
		c.Disconnect(ctx, sess.Conn.ID)
		return
	}
	c.log.Warn().Str("connection_id", sess.Conn.ID).Err(err).Msg("private delivery failed")
}

func (c *Coordinator) lastPostAt(senderKey string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPost[senderKey]
}

// markPosted records an accepted post and periodically sweeps entries whose
// age already exceeds the current slow-mode delay. Swept entries cannot
// change any decision at that delay.
func (c *Coordinator) markPosted(senderKey string, at time.Time, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPost[senderKey] = at

	if at.Sub(c.lastSweep) < lastPostSweepInterval {
		return
	}
	c.lastSweep = at
	for key, last := range c.lastPost {
		if key != senderKey && at.Sub(last) >= delay {
			delete(c.lastPost, key)
		}
	}
}

func appendError(err error) Event {
	switch {
	case errors.Is(err, store.ErrInvalidBody):
		return errorEvent(ErrCodeInvalidMessage, "message is empty or too long")
	case errors.Is(err, store.ErrUnavailable):
		return errorEvent(ErrCodeStoreUnavailable, "message store unavailable")
	default:
		return errorEvent(ErrCodeStoreUnavailable, "message store unavailable")
	}
}
