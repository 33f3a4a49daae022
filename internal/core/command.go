package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendRoomMessage delivers a chat message to a ride room.
	CommandSendRoomMessage CommandKind = iota
	// CommandJoinRoom subscribes the client to a ride room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a ride room.
	CommandLeaveRoom
	// CommandTyping announces that the client started typing.
	CommandTyping
	// CommandStopTyping announces that the client stopped typing.
	CommandStopTyping
)

// Command represents an action requested by a client. Room is the ride
// identifier of the target room.
type Command struct {
	Kind CommandKind
	Room string
	Text string
}
