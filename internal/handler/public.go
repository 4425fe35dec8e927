package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

// PublicHandler serves the anonymous customer routes
type PublicHandler struct {
	queues *service.QueueService
	tokens *service.TokenService
	logger *slog.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(queues *service.QueueService, tokens *service.TokenService, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{queues: queues, tokens: tokens, logger: logger}
}

type publicQueueDetail struct {
	PublicQueueResponse
	Active []domain.TokenSummary `json:"active"`
}

// PublicTokenResponse is what a customer sees about their own token
type PublicTokenResponse struct {
	Token         domain.TokenSummary `json:"token"`
	QueueID       string              `json:"queueId"`
	QueueName     string              `json:"queueName"`
	PeopleAhead   int                 `json:"peopleAhead"`
	EstimatedWait string              `json:"estimatedWait,omitempty"`
}

// ListQueues handles GET /api/public/queues
func (h *PublicHandler) ListQueues(w http.ResponseWriter, r *http.Request) {
	qs, err := h.queues.ListPublic(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]PublicQueueResponse, 0, len(qs))
	for _, q := range qs {
		out = append(out, toPublicQueue(q))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetQueue handles GET /api/public/queues/{id}
func (h *PublicHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	q, active, err := h.tokens.PublicActive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, publicQueueDetail{
		PublicQueueResponse: toPublicQueue(q),
		Active:              domain.SummarizeAll(active),
	})
}

// Join handles POST /api/public/queues/{id}/tokens
func (h *PublicHandler) Join(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, err := h.tokens.Enqueue(r.Context(), domain.PublicCaller(), r.PathValue("id"), req.toService())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeStatus(w, r, tok.ID, http.StatusCreated)
}

// TokenStatus handles GET /api/public/tokens/{id}
func (h *PublicHandler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, r.PathValue("id"), http.StatusOK)
}

func (h *PublicHandler) writeStatus(w http.ResponseWriter, r *http.Request, tokenID string, code int) {
	st, err := h.tokens.Status(r.Context(), tokenID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, code, PublicTokenResponse{
		Token:         domain.Summarize(st.Token),
		QueueID:       st.Token.QueueID,
		QueueName:     st.QueueName,
		PeopleAhead:   st.PeopleAhead,
		EstimatedWait: st.EstimatedWait,
	})
}
