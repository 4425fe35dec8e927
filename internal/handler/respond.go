package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become 500 with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		msg = "internal error"
	} else if status == http.StatusServiceUnavailable {
		log.Warn("storage unavailable", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		msg = "service temporarily unavailable"
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON object, rejecting unknown fields
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %s", errBadRequest, err.Error())
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}

// QueueResponse is the owner view of a queue
type QueueResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Active           bool      `json:"isActive"`
	MaxCapacity      *int      `json:"maxCapacity,omitempty"`
	CurrentOccupancy int       `json:"currentOccupancy"`
	TotalServed      int       `json:"totalServed"`
	TotalCancelled   int       `json:"totalCancelled"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toQueueResponse(q *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:               q.ID,
		Name:             q.Name,
		Description:      q.Description,
		Active:           q.Active,
		MaxCapacity:      q.MaxCapacity,
		CurrentOccupancy: q.CurrentOccupancy,
		TotalServed:      q.TotalServed,
		TotalCancelled:   q.TotalCancelled,
		Version:          q.Version,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

func toQueueResponses(qs []*domain.Queue) []QueueResponse {
	out := make([]QueueResponse, 0, len(qs))
	for _, q := range qs {
		out = append(out, toQueueResponse(q))
	}
	return out
}

// PublicQueueResponse omits owner-only fields
type PublicQueueResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Occupancy   *domain.Occupancy `json:"occupancy"`
}

func toPublicQueue(q *domain.Queue) PublicQueueResponse {
	return PublicQueueResponse{ID: q.ID, Name: q.Name, Description: q.Description, Occupancy: domain.OccupancyOf(q)}
}

// TokenResponse is the owner view of a token, contact details included
type TokenResponse struct {
	ID           string          `json:"id"`
	QueueID      string          `json:"queueId"`
	DisplayCode  string          `json:"displayCode"`
	CustomerName string          `json:"customerName"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Priority     domain.Priority `json:"priority"`
	Status       domain.Status   `json:"status"`
	Position     int             `json:"position"`
	Notes        string          `json:"notes,omitempty"`
	AssignedTo   string          `json:"assignedTo,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CalledAt     *time.Time      `json:"calledAt,omitempty"`
	ServedAt     *time.Time      `json:"servedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
	WaitTime     *int            `json:"waitTime,omitempty"`
	ServiceTime  *int            `json:"serviceTime,omitempty"`
}

func toTokenResponse(t *domain.Token) TokenResponse {
	position := t.Position
	if !t.Status.Active() {
		position = 0
	}
	return TokenResponse{
		ID:           t.ID,
		QueueID:      t.QueueID,
		DisplayCode:  t.DisplayCode,
		CustomerName: t.Customer.Name,
		Email:        t.Customer.Email,
		Phone:        t.Customer.Phone,
		Priority:     t.Priority,
		Status:       t.Status,
		Position:     position,
		Notes:        t.Notes,
		AssignedTo:   t.AssignedTo,
		CreatedAt:    t.Timestamps.Created,
		CalledAt:     t.Timestamps.Called,
		ServedAt:     t.Timestamps.Served,
		CompletedAt:  t.Timestamps.Completed,
		CancelledAt:  t.Timestamps.Cancelled,
		WaitTime:     t.WaitTime,
		ServiceTime:  t.ServiceTime,
	}
}

func toTokenResponses(ts []*domain.Token) []TokenResponse {
	out := make([]TokenResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTokenResponse(t))
	}
	return out
}

// StatsResponse flattens service.QueueStats
type StatsResponse struct {
	Queue              QueueResponse         `json:"queue"`
	StatusCounts       map[domain.Status]int `json:"statusCounts"`
	AvgWaitMinutes     float64               `json:"avgWaitMinutes"`
	AvgServiceMinutes  float64               `json:"avgServiceMinutes"`
	WaitSamples        int                   `json:"waitSamples"`
	ServiceSamples     int                   `json:"serviceSamples"`
	LongestWaitMinutes int                   `json:"longestWaitMinutes"`
}

func toStatsResponse(st *service.QueueStats) StatsResponse {
	return StatsResponse{
		Queue:              toQueueResponse(st.Queue),
		StatusCounts:       st.StatusCounts,
		AvgWaitMinutes:     st.AvgWaitMinutes,
		AvgServiceMinutes:  st.AvgServiceMinutes,
		WaitSamples:        st.WaitSamples,
		ServiceSamples:     st.ServiceSamples,
		LongestWaitMinutes: st.LongestWaitMinutes,
	}
}

// parseStatuses reads a comma-separated status filter
func parseStatuses(raw string) ([]domain.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domain.Status
	for _, part := range strings.Split(raw, ",") {
		st, err := domain.ParseStatus(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.Invalid("limit", "must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
