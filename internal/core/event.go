package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies clients about a persisted chat message.
	EventRoomMessage EventKind = iota
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventTyping notifies clients that a user is typing in a room.
	EventTyping
	// EventTypingStopped notifies clients that a user stopped typing.
	EventTypingStopped
	// EventAck acknowledges a join, leave or send back to the issuer.
	EventAck
	// EventError notifies clients about a domain error.
	EventError
)

// AckOp names the operation an EventAck responds to.
type AckOp string

const (
	AckOpJoin  AckOp = "join"
	AckOpLeave AckOp = "leave"
	AckOpSend  AckOp = "send"
)

// Ack is the per-operation result delivered to the issuing client only.
// For a successful send it carries the persisted message.
type Ack struct {
	Op      AckOp
	Room    string
	OK      bool
	Message *Message
	Error   *CoreError
}

// Event is sent to clients to describe what happened in the system.
// UserID and User identify the acting user for presence events.
type Event struct {
	Kind    EventKind
	Room    string
	UserID  string
	User    string
	Message *Message
	Ack     *Ack
	Error   *CoreError
}
