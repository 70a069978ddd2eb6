package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/config"
	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/proto"
	"github.com/finlive/streamchat-server/internal/utils"
)

// eventBuffer bounds undelivered events per connection. A consumer that
// keeps it full for a whole delivery window is treated as gone.
const eventBuffer = 64

var errConnClosed = errors.New("connection closed")

// WSHandler upgrades HTTP connections and bridges them to a session.
type WSHandler struct {
	coordinator *core.Coordinator
	verifier    *auth.Verifier
	cfg         *config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(coordinator *core.Coordinator, verifier *auth.Verifier, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{coordinator: coordinator, verifier: verifier, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// A missing or invalid credential degrades to a guest session; the
	// moderation gate decides whether guests may post.
	identity := h.identify(r)

	events := make(chan core.Event, eventBuffer)
	closed := make(chan struct{})
	var closeOnce sync.Once
	markClosed := func() { closeOnce.Do(func() { close(closed) }) }
	defer markClosed()

	sender := newEventSender(events, closed)

	sess := &core.Session{
		Conn:     core.NewConnection(utils.NewID(), h.cfg.ConnectionTTL, sender),
		Identity: identity,
	}

	h.coordinator.Connect(ctx, sess)
	defer h.coordinator.Disconnect(context.WithoutCancel(ctx), sess.Conn.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, events)
	}()

	err = <-errCh
	markClosed()
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("connection_id", sess.Conn.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// newEventSender bridges core events into the connection's outbound queue.
// A closed connection or a queue that stays full for the whole delivery
// window means the peer is gone; the caller giving up early does not.
func newEventSender(events chan<- core.Event, closed <-chan struct{}) core.Sender {
	return func(ctx context.Context, ev core.Event) error {
		select {
		case <-closed:
			return &core.DeliveryError{Permanent: true, Err: errConnClosed}
		default:
		}
		select {
		case events <- ev:
			return nil
		case <-closed:
			return &core.DeliveryError{Permanent: true, Err: errConnClosed}
		case <-ctx.Done():
			permanent := errors.Is(ctx.Err(), context.DeadlineExceeded)
			return &core.DeliveryError{Permanent: permanent, Err: ctx.Err()}
		}
	}
}

// identify extracts the bearer credential from the Authorization header or
// the token query parameter. Invalid credentials fall back to guest.
func (h *WSHandler) identify(r *stdhttp.Request) *auth.Identity {
	token := r.URL.Query().Get("token")
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("invalid ws credential, continuing as guest")
		return nil
	}
	return identity
}

// readLoop processes inbound envelopes in arrival order; events from one
// connection are never reordered.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		switch inbound.Action {
		case proto.ActionPost:
			var data proto.PostData
			if err := unmarshalData(inbound, &data); err != nil {
				h.sendProtocolError(ctx, sess, "malformed post data")
				continue
			}
			h.coordinator.Post(ctx, sess, data.Text)

		case proto.ActionJoin:
			h.coordinator.Join(ctx, sess)

		case proto.ActionDelete:
			var data proto.DeleteData
			if err := unmarshalData(inbound, &data); err != nil {
				h.sendProtocolError(ctx, sess, "malformed delete data")
				continue
			}
			h.coordinator.Delete(ctx, sess, data.ID)

		default:
			h.sendProtocolError(ctx, sess, "unknown action")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan core.Event) error {
	for {
		select {
		case ev := <-events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(ev)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) sendProtocolError(ctx context.Context, sess *core.Session, msg string) {
	if err := sess.Conn.Send(ctx, core.NewErrorEvent(core.ErrCodeBadRequest, msg)); err != nil {
		h.log.Debug().Err(err).Str("connection_id", sess.Conn.ID).Msg("failed to report protocol error")
	}
}

func unmarshalData(inbound proto.Inbound, v any) error {
	if len(inbound.Data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(inbound.Data, v)
}
