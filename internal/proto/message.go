package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeAuth       = "auth"
	InboundTypeJoin       = "join"
	InboundTypeLeave      = "leave"
	InboundTypeMsg        = "msg"
	InboundTypeTyping     = "typing"
	InboundTypeStopTyping = "stop_typing"

	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// AuthData carries the bearer credential; it must be the first frame on a
// connection.
type AuthData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData addresses a ride room for join, leave and typing frames.
type RoomData struct {
	Ride string `json:"ride_id"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Ride string `json:"ride_id"`
	Text string `json:"text"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Ack   *Ack   `json:"ack,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Ack reports the outcome of a join, leave or send back to the issuer.
type Ack struct {
	Op      string        `json:"op"`
	Ride    string        `json:"ride_id"`
	OK      bool          `json:"ok"`
	Message *EventMessage `json:"message,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

// EventMessage is a persisted chat message as delivered over the wire.
type EventMessage struct {
	ID       int64    `json:"id"`
	Ride     string   `json:"ride_id"`
	SenderID string   `json:"sender_id"`
	Sender   string   `json:"sender_name"`
	Text     string   `json:"text"`
	TS       int64    `json:"ts"`
	ReadBy   []string `json:"read_by,omitempty"`
}

// EventPresence notifies about a user joining, leaving or typing in a room.
type EventPresence struct {
	Ride   string `json:"ride_id"`
	UserID string `json:"user_id"`
	User   string `json:"name"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
