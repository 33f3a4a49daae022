package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/config"
	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/store"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// ChatHandlers provides the request/response side of the chat subsystem:
// paginated history and read receipts for clients without a live socket.
type ChatHandlers struct {
	store store.Store
	cfg   *config.Config
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, cfg *config.Config, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store: st,
		cfg:   cfg,
		log:   logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         int64    `json:"id"`
	RideID     string   `json:"ride_id"`
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name"`
	Text       string   `json:"text"`
	CreatedAt  string   `json:"created_at"`
	ReadBy     []string `json:"read_by"`
}

// HistoryResponse is the paginated history payload.
type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Total    int               `json:"total"`
	HasMore  bool              `json:"has_more"`
}

// MarkReadRequest carries the read cursor. Exactly one field is required.
type MarkReadRequest struct {
	LastMessageID *int64 `json:"last_message_id"`
	LastSeenAt    string `json:"last_seen_at"`
}

// MarkReadResponse acknowledges a read receipt.
type MarkReadResponse struct {
	Success bool `json:"success"`
}

// GetHistory returns one page of a ride room's messages, oldest to newest.
// GET /chat/:rideID/messages?page=&limit=&before=
func (h *ChatHandlers) GetHistory(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rideID := c.Param("rideID")
	if rideID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ride id is required"})
		return
	}

	page, err := parsePositiveInt(c.DefaultQuery("page", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	limit, err := parsePositiveInt(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit > maxPageLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := parseTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before timestamp"})
			return
		}
		before = &t
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	if !h.roomAccessible(ctx, c, rideID, identity.ID) {
		return
	}

	historyPage, err := h.store.ListMessages(ctx, rideID, page, limit, before)
	if err != nil {
		h.log.Error().Err(err).Str("ride", rideID).Msg("failed to list messages")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable, retry"})
		return
	}

	messages := make([]MessageResponse, 0, len(historyPage.Messages))
	for _, m := range historyPage.Messages {
		messages = append(messages, messageResponse(m))
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Messages: messages,
		Page:     page,
		Limit:    limit,
		Total:    historyPage.Total,
		HasMore:  historyPage.HasMore,
	})
}

// MarkRead records that the caller has read a room up to a cursor.
// POST /chat/:rideID/read
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	rideID := c.Param("rideID")
	if rideID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ride id is required"})
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid mark read request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var cursor store.ReadCursor
	switch {
	case req.LastMessageID != nil:
		cursor.LastMessageID = req.LastMessageID
	case req.LastSeenAt != "":
		t, err := parseTimestamp(req.LastSeenAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid last_seen_at"})
			return
		}
		cursor.LastSeenAt = &t
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "last_message_id or last_seen_at is required"})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	if !h.roomAccessible(ctx, c, rideID, identity.ID) {
		return
	}

	if err := h.store.MarkRead(ctx, rideID, identity.ID, cursor); err != nil {
		h.log.Error().Err(err).Str("ride", rideID).Str("user_id", identity.ID).Msg("failed to mark read")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable, retry"})
		return
	}

	c.JSON(http.StatusOK, MarkReadResponse{Success: true})
}

// roomAccessible validates the room's ride and, when membership is required,
// the caller's participation. Writes the error response on failure.
func (h *ChatHandlers) roomAccessible(ctx context.Context, c *gin.Context, rideID, userID string) bool {
	exists, err := h.store.RideExists(ctx, rideID)
	if err != nil {
		h.log.Error().Err(err).Str("ride", rideID).Msg("ride lookup failed")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable, retry"})
		return false
	}
	if !exists {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ride not found"})
		return false
	}

	if h.cfg.RequireRideMembership {
		member, err := h.store.IsParticipant(ctx, rideID, userID)
		if err != nil {
			h.log.Error().Err(err).Str("ride", rideID).Msg("participant lookup failed")
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable, retry"})
			return false
		}
		if !member {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this ride"})
			return false
		}
	}
	return true
}

func (h *ChatHandlers) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func messageResponse(m *core.Message) MessageResponse {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return MessageResponse{
		ID:         m.ID,
		RideID:     m.Ride,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339Nano),
		ReadBy:     readBy,
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// parseTimestamp accepts RFC3339 or unix milliseconds.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
