package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/realtime"
	"github.com/aryan0dhankhar/queueline/internal/security/middleware"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

// StreamHandler pushes a queue's live state over a websocket
type StreamHandler struct {
	tokens         *service.TokenService
	hub            *realtime.Hub
	logger         *slog.Logger
	allowedOrigins []string
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(tokens *service.TokenService, hub *realtime.Hub, logger *slog.Logger, allowedOrigins []string) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{tokens: tokens, hub: hub, logger: logger, allowedOrigins: allowedOrigins}
}

// Snapshot is the first message on every stream. Events with Seq <= Snapshot.Seq are already reflected in it.
type Snapshot struct {
	Type      string                `json:"type"`
	QueueID   string                `json:"queueId"`
	Seq       int64                 `json:"seq"`
	Active    []domain.TokenSummary `json:"active"`
	Occupancy *domain.Occupancy     `json:"occupancy"`
}

func (h *StreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			if middleware.OriginAllowed(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/queues/{id}
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	queueID := r.PathValue("id")

	// Subscribe before reading so nothing committed after the snapshot is missed.
	sub := h.hub.Subscribe(queueID)

	q, active, err := h.tokens.PublicActive(r.Context(), queueID)
	if err != nil {
		h.hub.Unsubscribe(sub)
		writeError(w, r, h.logger, err)
		return
	}

	snapshot, err := json.Marshal(Snapshot{
		Type:      "snapshot",
		QueueID:   q.ID,
		Seq:       q.Version,
		Active:    domain.SummarizeAll(active),
		Occupancy: domain.OccupancyOf(q),
	})
	if err != nil {
		h.hub.Unsubscribe(sub)
		writeError(w, r, h.logger, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.Unsubscribe(sub)
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	h.logger.Debug("stream opened", slog.String("queue_id", queueID))
	if err := h.hub.Stream(ws, sub, snapshot); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			h.logger.Debug("stream ended", slog.String("queue_id", queueID), slog.String("reason", err.Error()))
		}
	}
}
