package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/campusride/ridechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token")
	ride := flag.String("ride", "", "ride id to join")
	flag.Parse()

	if *token == "" || *ride == "" {
		return errors.New("-token and -ride are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v interface{}) {
		if writeErr := wsjson.Write(ctx, conn, v); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	authPayload, err := json.Marshal(proto.AuthData{Token: *token})
	if err != nil {
		return fmt.Errorf("marshal auth: %w", err)
	}
	send(proto.Inbound{Type: proto.InboundTypeAuth, Data: authPayload})

	joinPayload, err := json.Marshal(proto.RoomData{Ride: *ride})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	send(proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload})

	fmt.Printf("Connected to %s, ride %s\n", *addr, *ride)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *ride)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch {
		case outbound.Type == proto.OutboundTypeAck && outbound.Ack != nil:
			if outbound.Ack.OK {
				fmt.Printf("* %s ok (ride %s)\n", outbound.Ack.Op, outbound.Ack.Ride)
			} else if outbound.Ack.Error != nil {
				fmt.Printf("* %s failed: %s\n", outbound.Ack.Op, outbound.Ack.Error.Msg)
			}
		case outbound.Type == proto.OutboundTypeError && outbound.Error != nil:
			fmt.Printf("! error: %s (%s)\n", outbound.Error.Msg, outbound.Error.Code)
		case outbound.Event == "message":
			var evt proto.EventMessage
			if decodeEvent(outbound.Data, &evt) {
				fmt.Printf("[%s] %s: %s\n", evt.Ride, evt.Sender, evt.Text)
			}
		case outbound.Event == "user_joined":
			var evt proto.EventPresence
			if decodeEvent(outbound.Data, &evt) {
				fmt.Printf("[ride %s] %s joined\n", evt.Ride, evt.User)
			}
		case outbound.Event == "user_left":
			var evt proto.EventPresence
			if decodeEvent(outbound.Data, &evt) {
				fmt.Printf("[ride %s] %s left\n", evt.Ride, evt.User)
			}
		case outbound.Event == "typing":
			var evt proto.EventPresence
			if decodeEvent(outbound.Data, &evt) {
				fmt.Printf("[ride %s] %s is typing...\n", evt.Ride, evt.User)
			}
		}
	}
}

func decodeEvent(data any, v any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal outbound data: %v", err)
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("unmarshal event: %v", err)
		return false
	}
	return true
}

func writeLoop(ctx context.Context, conn *websocket.Conn, ride string) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		payload, err := json.Marshal(proto.MsgData{Ride: ride, Text: text})
		if err != nil {
			log.Printf("marshal msg: %v", err)
			continue
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
			log.Printf("send msg: %v", err)
			return
		}
	}
}
