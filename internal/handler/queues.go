package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/security/middleware"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

// QueueHandler serves the owner queue routes
type QueueHandler struct {
	queues *service.QueueService
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queues *service.QueueService, logger *slog.Logger) *QueueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueHandler{queues: queues, logger: logger}
}

type createQueueRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxCapacity *int   `json:"maxCapacity"`
}

type updateQueueRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	MaxCapacity *int    `json:"maxCapacity"`
	Active      *bool   `json:"isActive"`
}

// Create handles POST /api/queues
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req createQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := h.queues.Create(r.Context(), middleware.CallerFromContext(r.Context()), service.CreateQueueRequest{
		Name:        req.Name,
		Description: req.Description,
		MaxCapacity: req.MaxCapacity,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/queues/"+q.ID)
	writeJSON(w, http.StatusCreated, toQueueResponse(q))
}

// List handles GET /api/queues
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	qs, err := h.queues.List(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponses(qs))
}

// Get handles GET /api/queues/{id}
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.queues.Get(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponse(q))
}

// Update handles PATCH /api/queues/{id}
func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	var req updateQueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q, err := h.queues.Update(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"), domain.QueuePatch{
		Name:        req.Name,
		Description: req.Description,
		MaxCapacity: req.MaxCapacity,
		Active:      req.Active,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponse(q))
}

// Delete handles DELETE /api/queues/{id}
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.queues.Delete(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/queues/{id}/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.queues.Stats(r.Context(), middleware.CallerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(st))
}
