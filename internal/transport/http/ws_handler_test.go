package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/campusride/ridechat-server/internal/proto"
)

func wsURL(ts string) string {
	return strings.Replace(ts, "http", "ws", 1) + "/ws"
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", frameType, err)
	}
}

// waitFrame reads outbound frames until match returns true.
func waitFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(proto.Outbound) bool) proto.Outbound {
	t.Helper()

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(outbound) {
			return outbound
		}
	}
}

func dialAndAuth(t *testing.T, ctx context.Context, ts, userID, name string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	sendFrame(t, ctx, conn, proto.InboundTypeAuth, proto.AuthData{Token: testToken(t, userID, name)})
	return conn
}

func joinRide(t *testing.T, ctx context.Context, conn *websocket.Conn, ride string) {
	t.Helper()

	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.RoomData{Ride: ride})
	frame := waitFrame(t, ctx, conn, func(o proto.Outbound) bool {
		return o.Type == proto.OutboundTypeAck && o.Ack != nil && o.Ack.Op == "join"
	})
	if !frame.Ack.OK {
		t.Fatalf("join refused: %+v", frame.Ack.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialAndAuth(t, ctx, ts.URL, "u-alice", "alice")
	connB := dialAndAuth(t, ctx, ts.URL, "u-bob", "bob")

	joinRide(t, ctx, connA, "ride-42")
	joinRide(t, ctx, connB, "ride-42")

	// A was already in the room, so it observes B's arrival.
	frame := waitFrame(t, ctx, connA, func(o proto.Outbound) bool {
		return o.Event == "user_joined"
	})
	var joined proto.EventPresence
	decodeFrameData(t, frame.Data, &joined)
	if joined.UserID != "u-bob" || joined.Ride != "ride-42" {
		t.Fatalf("unexpected join event: %+v", joined)
	}

	sendFrame(t, ctx, connA, proto.InboundTypeMsg, proto.MsgData{Ride: "ride-42", Text: "hello"})

	// Sender gets an ack with the persisted message.
	ackFrame := waitFrame(t, ctx, connA, func(o proto.Outbound) bool {
		return o.Type == proto.OutboundTypeAck && o.Ack != nil && o.Ack.Op == "send"
	})
	if !ackFrame.Ack.OK || ackFrame.Ack.Message == nil || ackFrame.Ack.Message.ID == 0 {
		t.Fatalf("unexpected send ack: %+v", ackFrame.Ack)
	}

	// Both connections receive the fan-out, the sender included.
	for _, conn := range []*websocket.Conn{connA, connB} {
		msgFrame := waitFrame(t, ctx, conn, func(o proto.Outbound) bool {
			return o.Event == "message"
		})
		var msg proto.EventMessage
		decodeFrameData(t, msgFrame.Data, &msg)
		if msg.Text != "hello" || msg.SenderID != "u-alice" || msg.Ride != "ride-42" {
			t.Fatalf("unexpected message event: %+v", msg)
		}
	}
}

func TestWebSocketTypingRelay(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialAndAuth(t, ctx, ts.URL, "u-alice", "alice")
	connB := dialAndAuth(t, ctx, ts.URL, "u-bob", "bob")
	joinRide(t, ctx, connA, "ride-42")
	joinRide(t, ctx, connB, "ride-42")

	sendFrame(t, ctx, connB, proto.InboundTypeTyping, proto.RoomData{Ride: "ride-42"})
	frame := waitFrame(t, ctx, connA, func(o proto.Outbound) bool {
		return o.Event == "typing"
	})
	var typing proto.EventPresence
	decodeFrameData(t, frame.Data, &typing)
	if typing.UserID != "u-bob" {
		t.Fatalf("unexpected typing event: %+v", typing)
	}
}

func TestWebSocketJoinUnknownRide(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndAuth(t, ctx, ts.URL, "u-alice", "alice")
	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.RoomData{Ride: "ghost"})

	frame := waitFrame(t, ctx, conn, func(o proto.Outbound) bool {
		return o.Type == proto.OutboundTypeAck && o.Ack != nil && o.Ack.Op == "join"
	})
	if frame.Ack.OK || frame.Ack.Error == nil || frame.Ack.Error.Code != "ride_not_found" {
		t.Fatalf("expected ride_not_found, got %+v", frame.Ack)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	sendFrame(t, ctx, conn, proto.InboundTypeAuth, proto.AuthData{Token: "garbage"})

	// The server answers with an error frame and closes the connection.
	var sawError bool
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			break
		}
		if outbound.Type == proto.OutboundTypeError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error frame before close")
	}
}

func TestWebSocketRequiresAuthFirst(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Join before auth must be refused.
	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.RoomData{Ride: "ride-42"})

	var sawError bool
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			break
		}
		if outbound.Type == proto.OutboundTypeError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error frame before close")
	}
}

func decodeFrameData(t *testing.T, data any, v any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal frame data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal frame data: %v", err)
	}
}
