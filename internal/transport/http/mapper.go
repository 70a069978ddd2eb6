package http

import (
	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/proto"
	"github.com/finlive/streamchat-server/internal/store"
)

// outboundFromEvent maps a core event onto the wire envelope.
func outboundFromEvent(ev core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type: proto.TypeMessage,
			Data: messagePayload(*ev.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type: proto.TypeMessageDeleted,
			Data: proto.MessageDeletedPayload{ID: ev.MessageID},
		}
	case core.EventHistory:
		payload := make([]proto.MessagePayload, 0, len(ev.History))
		for _, msg := range ev.History {
			payload = append(payload, messagePayload(msg))
		}
		return proto.Outbound{
			Type: proto.TypeMessageHistory,
			Data: payload,
		}
	case core.EventUserCount:
		return proto.Outbound{
			Type: proto.TypeUserCount,
			Data: ev.UserCount,
		}
	case core.EventError:
		payload := proto.ErrorPayload{Message: "internal error"}
		if ev.Err != nil {
			payload = proto.ErrorPayload{Message: ev.Err.Message, Code: ev.Err.Code}
		}
		return proto.Outbound{
			Type: proto.TypeError,
			Data: payload,
		}
	default:
		return proto.Outbound{
			Type: proto.TypeError,
			Data: proto.ErrorPayload{Message: "internal error"},
		}
	}
}

func messagePayload(msg store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:        msg.ID,
		Text:      msg.Body,
		Username:  msg.Username,
		IsAdmin:   msg.IsAdmin,
		Timestamp: msg.CreatedAt,
	}
}
