package http

import (
	"encoding/json"

	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave, proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var room proto.RoomData
		if err := json.Unmarshal(inbound.Data, &room); err != nil {
			return nil, nil, err
		}
		if room.Ride == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "ride_id is required"}, nil
		}
		return &core.Command{
			Kind: commandKind(inbound.Type),
			Room: room.Ride,
		}, nil, nil
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Ride == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "ride_id is required"}, nil
		}
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Room: msg.Ride,
			Text: msg.Text,
		}, nil, nil
	case proto.InboundTypeAuth:
		// Only valid as the first frame; handled by the connection setup.
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func commandKind(inboundType string) core.CommandKind {
	switch inboundType {
	case proto.InboundTypeLeave:
		return core.CommandLeaveRoom
	case proto.InboundTypeTyping:
		return core.CommandTyping
	case proto.InboundTypeStopTyping:
		return core.CommandStopTyping
	default:
		return core.CommandJoinRoom
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message",
			Data:  eventMessage(event.Message),
		}
	case core.EventUserJoined:
		return presenceOutbound("user_joined", event)
	case core.EventUserLeft:
		return presenceOutbound("user_left", event)
	case core.EventTyping:
		return presenceOutbound("typing", event)
	case core.EventTypingStopped:
		return presenceOutbound("typing_stopped", event)
	case core.EventAck:
		ack := &proto.Ack{
			Op:   string(event.Ack.Op),
			Ride: event.Ack.Room,
			OK:   event.Ack.OK,
		}
		if event.Ack.Message != nil {
			m := eventMessage(event.Ack.Message)
			ack.Message = &m
		}
		if event.Ack.Error != nil {
			ack.Error = &proto.Error{Code: event.Ack.Error.Code, Msg: event.Ack.Error.Message}
		}
		return proto.Outbound{Type: proto.OutboundTypeAck, Ack: ack}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func presenceOutbound(name string, event *core.Event) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: name,
		Data: proto.EventPresence{
			Ride:   event.Room,
			UserID: event.UserID,
			User:   event.User,
		},
	}
}

func eventMessage(m *core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:       m.ID,
		Ride:     m.Ride,
		SenderID: m.SenderID,
		Sender:   m.SenderName,
		Text:     m.Text,
		TS:       m.CreatedAt.UnixMilli(),
		ReadBy:   m.ReadBy,
	}
}
