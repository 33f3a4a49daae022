// Package relay bridges message fan-out between server instances. Each
// instance publishes the messages it persisted on a shared Redis channel and
// replays the ones other instances published into its local rooms. A single
// instance without Redis configured simply runs without a relay.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/core"
)

const defaultChannel = "ridechat.messages"

type envelope struct {
	Instance   string    `json:"instance"`
	ID         int64     `json:"id"`
	Ride       string    `json:"ride_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Redis implements core.Relay over Redis pub/sub.
type Redis struct {
	client   *redis.Client
	channel  string
	instance string
	messages chan *core.Message
	log      zerolog.Logger
}

// NewRedis connects to addr and uses channel for the shared stream. An empty
// channel selects the default.
func NewRedis(addr, channel string, logger *zerolog.Logger) (*Redis, error) {
	if channel == "" {
		channel = defaultChannel
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Redis{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		messages: make(chan *core.Message, 256),
		log:      log,
	}, nil
}

// PublishMessage forwards a persisted message to the other instances.
func (r *Redis) PublishMessage(ctx context.Context, m *core.Message) error {
	payload, err := json.Marshal(envelope{
		Instance:   r.instance,
		ID:         m.ID,
		Ride:       m.Ride,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish relay message: %w", err)
	}
	return nil
}

// Messages yields messages persisted by other instances.
func (r *Redis) Messages() <-chan *core.Message {
	return r.messages
}

// Run consumes the shared channel until the context is cancelled. Own
// messages are skipped; local fan-out already handled them.
func (r *Redis) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	defer close(r.messages)

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handlePayload([]byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

// handlePayload decodes one published envelope and enqueues it for local
// fan-out. Envelopes this instance published are skipped.
func (r *Redis) handlePayload(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.log.Warn().Err(err).Msg("bad relay payload")
		return
	}
	if env.Instance == r.instance {
		return
	}
	m := &core.Message{
		ID:         env.ID,
		Ride:       env.Ride,
		SenderID:   env.SenderID,
		SenderName: env.SenderName,
		Text:       env.Text,
		CreatedAt:  env.CreatedAt,
	}
	select {
	case r.messages <- m:
	default:
		r.log.Warn().Str("ride", env.Ride).Msg("relay buffer full, message dropped")
	}
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
