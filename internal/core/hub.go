package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MessageStore persists ride chat messages. The store assigns the id and
// creation timestamp at write time.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *Message) error
}

// RideDirectory resolves ride rooms against the externally owned rides data.
type RideDirectory interface {
	RideExists(ctx context.Context, rideID string) (bool, error)
	IsParticipant(ctx context.Context, rideID, userID string) (bool, error)
}

// Relay bridges persisted messages between server instances so fan-out
// reaches clients connected elsewhere. Optional; nil means single-process.
type Relay interface {
	PublishMessage(ctx context.Context, m *Message) error
	Messages() <-chan *Message
}

// HubConfig tunes the protocol engine.
type HubConfig struct {
	// RequireMembership gates join and send on the caller being the ride's
	// driver or an accepted passenger. Off by default for compatibility
	// with clients built against the open-room behavior.
	RequireMembership bool
	// StoreTimeout bounds every message-store and ride-directory call.
	StoreTimeout time.Duration
	// MaxMessageLen caps the trimmed message body length in bytes.
	MaxMessageLen int
}

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultMaxMessageLen = 2000
)

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub is the chat protocol engine. A single goroutine owns the registry and
// handles every command in arrival order, which both makes room state safe
// under concurrent connections and serializes message writes per process.
type Hub struct {
	store MessageStore
	rides RideDirectory
	relay Relay
	cfg   HubConfig
	log   zerolog.Logger

	registry   *Registry
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	done       chan struct{}
}

// NewHub creates the protocol engine. relay may be nil; logger may be nil.
func NewHub(store MessageStore, rides RideDirectory, relay Relay, cfg HubConfig, logger *zerolog.Logger) *Hub {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = defaultMaxMessageLen
	}
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Hub{
		store:      store,
		rides:      rides,
		relay:      relay,
		cfg:        cfg,
		log:        log,
		registry:   NewRegistry(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		done:       make(chan struct{}),
	}
}

// RegisterClient adds an authenticated connection to the hub and starts
// pumping its commands. The pump ends when the client's command channel is
// closed by the transport, or when the hub shuts down.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		return
	}
	go func() {
		for {
			select {
			case cmd, ok := <-c.Commands:
				if !ok {
					return
				}
				select {
				case h.commands <- clientCommand{client: c, cmd: cmd}:
				case <-h.done:
					return
				}
			case <-h.done:
				return
			}
		}
	}()
}

// UnregisterClient removes a disconnected client. Remaining room members are
// notified of the departure for every room the client was in.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes commands until the context is cancelled. Returning closes
// the done channel, which releases every client command pump.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var remote <-chan *Message
	if h.relay != nil {
		remote = h.relay.Messages()
	}
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("client registered")
		case c := <-h.unregister:
			h.dropClient(c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case m, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			h.deliverLocal(m)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	// Commands queued by a connection that already disconnected are stale.
	if _, ok := h.clients[c]; !ok {
		return
	}
	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd.Room)
	case CommandSendRoomMessage:
		h.handleSend(ctx, c, cmd.Room, cmd.Text)
	case CommandTyping:
		h.handleTyping(c, cmd.Room, EventTyping)
	case CommandStopTyping:
		h.handleTyping(c, cmd.Room, EventTypingStopped)
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, ride string) {
	if _, joined := c.Rooms[ride]; joined {
		// Rejoin is a no-op success: no duplicate presence event.
		h.ack(c, &Ack{Op: AckOpJoin, Room: ride, OK: true})
		return
	}

	if cerr := h.checkRide(ctx, c, ride); cerr != nil {
		h.ack(c, &Ack{Op: AckOpJoin, Room: ride, OK: false, Error: cerr})
		return
	}

	room := h.registry.Room(ride)
	room.AddClient(c)
	c.Rooms[ride] = struct{}{}

	h.ack(c, &Ack{Op: AckOpJoin, Room: ride, OK: true})
	room.BroadcastExcept(c, &Event{
		Kind:   EventUserJoined,
		Room:   ride,
		UserID: c.UserID,
		User:   c.Name,
	})
	h.log.Debug().Str("ride", ride).Str("user_id", c.UserID).Int("members", room.Size()).Msg("joined room")
}

func (h *Hub) handleLeave(c *Client, ride string) {
	if h.registry.Remove(c, ride) {
		delete(c.Rooms, ride)
		if room := h.registry.Lookup(ride); room != nil {
			room.Broadcast(&Event{
				Kind:   EventUserLeft,
				Room:   ride,
				UserID: c.UserID,
				User:   c.Name,
			})
		}
	}
	// Leaving a room not joined is a no-op, still acknowledged.
	h.ack(c, &Ack{Op: AckOpLeave, Room: ride, OK: true})
}

func (h *Hub) handleSend(ctx context.Context, c *Client, ride, text string) {
	if _, joined := c.Rooms[ride]; !joined {
		h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: false,
			Error: coreError(ErrCodeNotInRoom, "join the room before sending")})
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: false,
			Error: coreError(ErrCodeBadRequest, "message text is empty")})
		return
	}
	if len(text) > h.cfg.MaxMessageLen {
		h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: false,
			Error: coreError(ErrCodeBadRequest, "message text too long")})
		return
	}

	// The ride may have been deleted since the join.
	if cerr := h.checkRide(ctx, c, ride); cerr != nil {
		h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: false, Error: cerr})
		return
	}

	msg := &Message{
		Ride:       ride,
		SenderID:   c.UserID,
		SenderName: c.Name,
		Text:       text,
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err := h.store.SaveMessage(storeCtx, msg)
	cancel()
	if err != nil {
		// Nothing was persisted, so nothing is broadcast.
		h.log.Warn().Err(err).Str("ride", ride).Msg("message persist failed")
		h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: false,
			Error: coreError(ErrCodeStoreUnavailable, "message could not be saved, retry")})
		return
	}

	h.ack(c, &Ack{Op: AckOpSend, Room: ride, OK: true, Message: msg})
	h.deliverLocal(msg)

	if h.relay != nil {
		if err := h.relay.PublishMessage(ctx, msg); err != nil {
			h.log.Warn().Err(err).Str("ride", ride).Msg("relay publish failed")
		}
	}
}

// deliverLocal fans a persisted message out to every local connection in its
// room, the sender's included.
func (h *Hub) deliverLocal(m *Message) {
	room := h.registry.Lookup(m.Ride)
	if room == nil {
		return
	}
	room.Broadcast(&Event{
		Kind:    EventRoomMessage,
		Room:    m.Ride,
		UserID:  m.SenderID,
		User:    m.SenderName,
		Message: m,
	})
}

func (h *Hub) handleTyping(c *Client, ride string, kind EventKind) {
	if _, joined := c.Rooms[ride]; !joined {
		// Fire-and-forget; nothing to report.
		return
	}
	if room := h.registry.Lookup(ride); room != nil {
		room.BroadcastExcept(c, &Event{
			Kind:   kind,
			Room:   ride,
			UserID: c.UserID,
			User:   c.Name,
		})
	}
}

func (h *Hub) dropClient(c *Client) {
	delete(h.clients, c)
	for _, ride := range h.registry.RemoveAll(c) {
		if room := h.registry.Lookup(ride); room != nil {
			room.Broadcast(&Event{
				Kind:   EventUserLeft,
				Room:   ride,
				UserID: c.UserID,
				User:   c.Name,
			})
		}
	}
	c.Rooms = make(map[string]struct{})
	h.log.Debug().Str("conn_id", c.ID).Str("user_id", c.UserID).Msg("client unregistered")
}

// checkRide validates that the ride exists and, when membership is required,
// that the user belongs to it. Returns nil when the room may be used.
func (h *Hub) checkRide(ctx context.Context, c *Client, ride string) *CoreError {
	if ride == "" {
		return coreError(ErrCodeBadRequest, "ride id is required")
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	exists, err := h.rides.RideExists(checkCtx, ride)
	if err != nil {
		h.log.Warn().Err(err).Str("ride", ride).Msg("ride lookup failed")
		return coreError(ErrCodeStoreUnavailable, "ride lookup failed, retry")
	}
	if !exists {
		return coreError(ErrCodeRideNotFound, "ride not found")
	}

	if h.cfg.RequireMembership {
		member, err := h.rides.IsParticipant(checkCtx, ride, c.UserID)
		if err != nil {
			h.log.Warn().Err(err).Str("ride", ride).Msg("participant lookup failed")
			return coreError(ErrCodeStoreUnavailable, "ride lookup failed, retry")
		}
		if !member {
			return coreError(ErrCodeForbidden, "not a participant of this ride")
		}
	}
	return nil
}

// ack answers an explicit client request. Unlike broadcasts, a dropped ack
// leaves the client waiting, so the drop is logged.
func (h *Hub) ack(c *Client, a *Ack) {
	select {
	case c.Events <- &Event{Kind: EventAck, Room: a.Room, Ack: a}:
	default:
		h.log.Warn().
			Str("conn_id", c.ID).
			Str("op", string(a.Op)).
			Str("ride", a.Room).
			Msg("ack dropped, event buffer full")
	}
}
