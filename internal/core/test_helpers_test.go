package core

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a goroutine-safe log sink for asserting on hub log output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustAck(t *testing.T, ch <-chan *Event, op AckOp) *Ack {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil || ev.Kind != EventAck || ev.Ack == nil {
				continue
			}
			if ev.Ack.Op == op {
				return ev.Ack
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected ack for op %q not received", op)
	return nil
}

// fakeMessageStore assigns ids in memory and can be told to fail.
type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	saved    []*Message
	failSave bool
}

func (f *fakeMessageStore) SaveMessage(_ context.Context, m *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("store down")
	}
	f.nextID++
	m.ID = f.nextID
	m.CreatedAt = time.Now().UTC()
	f.saved = append(f.saved, m)
	return nil
}

func (f *fakeMessageStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeRelay records published messages and feeds remote ones to the hub.
type fakeRelay struct {
	mu        sync.Mutex
	published []*Message
	incoming  chan *Message
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{incoming: make(chan *Message, 8)}
}

func (f *fakeRelay) PublishMessage(_ context.Context, m *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, m)
	return nil
}

func (f *fakeRelay) Messages() <-chan *Message {
	return f.incoming
}

func (f *fakeRelay) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeRides maps ride id to its participant set.
type fakeRides struct {
	rides map[string]map[string]bool
}

func newFakeRides(rideIDs ...string) *fakeRides {
	rides := make(map[string]map[string]bool)
	for _, id := range rideIDs {
		rides[id] = make(map[string]bool)
	}
	return &fakeRides{rides: rides}
}

func (f *fakeRides) RideExists(_ context.Context, rideID string) (bool, error) {
	_, ok := f.rides[rideID]
	return ok, nil
}

func (f *fakeRides) IsParticipant(_ context.Context, rideID, userID string) (bool, error) {
	members, ok := f.rides[rideID]
	if !ok {
		return false, nil
	}
	return members[userID], nil
}

func startHub(t *testing.T, store MessageStore, rides RideDirectory, cfg HubConfig) *Hub {
	t.Helper()
	return startHubRelay(t, store, rides, nil, cfg)
}

func startHubRelay(t *testing.T, store MessageStore, rides RideDirectory, relay Relay, cfg HubConfig) *Hub {
	t.Helper()

	hub := NewHub(store, rides, relay, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}
