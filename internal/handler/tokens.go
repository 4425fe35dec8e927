package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/security/middleware"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// TokenHandler serves the owner token routes
type TokenHandler struct {
	tokens *service.TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(tokens *service.TokenService, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{tokens: tokens, logger: logger}
}

type enqueueRequest struct {
	CustomerName string `json:"customerName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Priority     string `json:"priority"`
	Notes        string `json:"notes"`
}

func (e enqueueRequest) toService() service.EnqueueRequest {
	return service.EnqueueRequest{
		Customer: domain.Customer{Name: e.CustomerName, Email: e.Email, Phone: e.Phone},
		Priority: e.Priority,
		Notes:    e.Notes,
	}
}

type moveRequest struct {
	Position int `json:"position"`
}

// MoveResponse is returned after a reorder with the refreshed active list
type MoveResponse struct {
	Token  TokenResponse   `json:"token"`
	Active []TokenResponse `json:"active"`
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type assignRequest struct {
	AssignedTo string `json:"assignedTo"`
}

type notifyRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Enqueue handles POST /api/queues/{id}/tokens
func (h *TokenHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, err := h.tokens.Enqueue(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"), req.toService())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(tok))
}

// Active handles GET /api/queues/{id}/tokens
func (h *TokenHandler) Active(w http.ResponseWriter, r *http.Request) {
	active, err := h.tokens.ActiveTokens(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponses(active))
}

// History handles GET /api/queues/{id}/tokens/history?status=served,cancelled&limit=50
func (h *TokenHandler) History(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tokens, err := h.tokens.History(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"), statuses, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponses(tokens))
}

// CallNext handles POST /api/queues/{id}/call-next
func (h *TokenHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	tok, err := h.tokens.CallNext(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok))
}

// Move handles PUT /api/queues/{id}/tokens/{tokenId}/position
func (h *TokenHandler) Move(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, active, err := h.tokens.Reorder(r.Context(), middleware.CallerFromContext(r.Context()),
		r.PathValue("id"), r.PathValue("tokenId"), req.Position)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MoveResponse{Token: toTokenResponse(tok), Active: toTokenResponses(active)})
}

// SetStatus handles POST /api/queues/{id}/tokens/{tokenId}/status
func (h *TokenHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, err := h.tokens.Transition(r.Context(), middleware.CallerFromContext(r.Context()),
		r.PathValue("id"), r.PathValue("tokenId"), target, req.Notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok))
}

// Assign handles POST /api/queues/{id}/tokens/{tokenId}/assign
func (h *TokenHandler) Assign(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tok, err := h.tokens.Assign(r.Context(), middleware.CallerFromContext(r.Context()),
		r.PathValue("id"), r.PathValue("tokenId"), req.AssignedTo)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(tok))
}

// Notify handles POST /api/queues/{id}/tokens/{tokenId}/notify. Delivery is asynchronous.
func (h *TokenHandler) Notify(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req notifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	err := h.tokens.SendMessage(r.Context(), middleware.CallerFromContext(r.Context()),
		r.PathValue("id"), r.PathValue("tokenId"), req.Subject, req.Message)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
