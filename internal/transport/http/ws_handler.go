package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/auth"
	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/proto"
	"github.com/campusride/ridechat-server/internal/utils"
)

// WSHandler upgrades HTTP connections, authenticates them and bridges them
// to core.Client.
type WSHandler struct {
	hub         *core.Hub
	verifier    *auth.Verifier
	authTimeout time.Duration
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. The first frame on every
// connection must be an auth frame arriving within authTimeout.
func NewWSHandler(hub *core.Hub, verifier *auth.Verifier, authTimeout time.Duration, logger *zerolog.Logger) stdhttp.Handler {
	if authTimeout <= 0 {
		authTimeout = 10 * time.Second
	}
	return &WSHandler{hub: hub, verifier: verifier, authTimeout: authTimeout, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	identity, err := h.authenticate(ctx, conn)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	client := core.NewClient(utils.NewConnID(), identity.ID, identity.Name)
	h.hub.RegisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	// Both loops are done: nothing writes to Commands anymore, so the hub
	// can drop the client and its command pump can wind down.
	h.hub.UnregisterClient(client)
	close(client.Commands)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate reads the first frame, which must carry a valid credential.
func (h *WSHandler) authenticate(ctx context.Context, conn *websocket.Conn) (*auth.Identity, error) {
	authCtx, cancel := context.WithTimeout(ctx, h.authTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(authCtx, conn, &inbound); err != nil {
		return nil, err
	}
	if inbound.Type != proto.InboundTypeAuth {
		h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "first frame must be auth"})
		return nil, errors.New("first frame is not auth")
	}

	var data proto.AuthData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return nil, err
	}
	if data.Token == "" {
		h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"})
		return nil, errors.New("empty token")
	}

	identity, err := h.verifier.Verify(authCtx, data.Token)
	if err != nil {
		h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"})
		return nil, err
	}
	return identity, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			select {
			case client.Commands <- cmd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, perr *proto.Error) {
	writeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = wsjson.Write(writeCtx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}
