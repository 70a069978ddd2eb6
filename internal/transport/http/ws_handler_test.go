package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/config"
	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/proto"
)

func newIdentifyHandler() *WSHandler {
	logger := zerolog.Nop()
	cfg := config.Default()
	return &WSHandler{
		verifier: auth.NewVerifier(&auth.Config{
			Secret:   []byte(testSecret),
			Issuer:   "identity-service",
			Audience: "streamchat",
		}),
		cfg: &cfg,
		log: &logger,
	}
}

func TestIdentifyFromHeader(t *testing.T) {
	h := newIdentifyHandler()
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "moderator"))

	identity := h.identify(req)
	require.NotNil(t, identity)
	require.Equal(t, "u1", identity.UserID)
	require.Equal(t, auth.RoleModerator, identity.Role)
}

func TestIdentifyFromQueryParam(t *testing.T) {
	h := newIdentifyHandler()
	req := httptest.NewRequest("GET", "/ws?token="+mintToken(t, "viewer"), nil)

	identity := h.identify(req)
	require.NotNil(t, identity)
	require.Equal(t, auth.RoleViewer, identity.Role)
}

func TestIdentifyHeaderWinsOverQuery(t *testing.T) {
	h := newIdentifyHandler()
	req := httptest.NewRequest("GET", "/ws?token="+mintToken(t, "viewer"), nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "admin"))

	identity := h.identify(req)
	require.NotNil(t, identity)
	require.Equal(t, auth.RoleAdmin, identity.Role)
}

func TestIdentifyMissingCredentialIsGuest(t *testing.T) {
	h := newIdentifyHandler()
	req := httptest.NewRequest("GET", "/ws", nil)
	require.Nil(t, h.identify(req))
}

func TestIdentifyInvalidCredentialIsGuest(t *testing.T) {
	h := newIdentifyHandler()
	req := httptest.NewRequest("GET", "/ws?token=garbage", nil)
	require.Nil(t, h.identify(req))
}

func TestEventSenderDeliveryClassification(t *testing.T) {
	events := make(chan core.Event, 1)
	closed := make(chan struct{})
	sender := newEventSender(events, closed)

	require.NoError(t, sender(context.Background(), core.NewErrorEvent("x", "queued")))

	// Queue is now full. A canceled caller is not evidence the peer is gone.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender(canceled, core.NewErrorEvent("x", "dropped"))
	var de *core.DeliveryError
	require.ErrorAs(t, err, &de)
	require.False(t, de.Permanent)

	// A full queue for the whole delivery window is.
	expired, cancelExpired := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancelExpired()
	<-expired.Done()
	err = sender(expired, core.NewErrorEvent("x", "dropped"))
	require.ErrorAs(t, err, &de)
	require.True(t, de.Permanent)

	// So is a closed connection.
	close(closed)
	err = sender(context.Background(), core.NewErrorEvent("x", "dropped"))
	require.ErrorAs(t, err, &de)
	require.True(t, de.Permanent)
}

func TestUnmarshalData(t *testing.T) {
	var data proto.PostData
	err := unmarshalData(proto.Inbound{Action: proto.ActionPost, Data: []byte(`{"text":"hi"}`)}, &data)
	require.NoError(t, err)
	require.Equal(t, "hi", data.Text)

	require.Error(t, unmarshalData(proto.Inbound{Action: proto.ActionPost}, &data))
	require.Error(t, unmarshalData(proto.Inbound{Action: proto.ActionPost, Data: []byte(`{`)}, &data))
}
