package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Queues *QueueHandler
	Tokens *TokenHandler
	Public *PublicHandler
	Stream *StreamHandler
	Health *HealthHandler

	// PublicJoin registers the anonymous join route when true
	PublicJoin bool
	// JoinLimit wraps the anonymous join route; nil leaves it unwrapped
	JoinLimit func(http.Handler) http.Handler
}

// NewRouter registers every route on a fresh ServeMux
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/queues", h.Queues.Create)
	mux.HandleFunc("GET /api/queues", h.Queues.List)
	mux.HandleFunc("GET /api/queues/{id}", h.Queues.Get)
	mux.HandleFunc("PATCH /api/queues/{id}", h.Queues.Update)
	mux.HandleFunc("DELETE /api/queues/{id}", h.Queues.Delete)
	mux.HandleFunc("GET /api/queues/{id}/stats", h.Queues.Stats)

	mux.HandleFunc("POST /api/queues/{id}/tokens", h.Tokens.Enqueue)
	mux.HandleFunc("GET /api/queues/{id}/tokens", h.Tokens.Active)
	mux.HandleFunc("GET /api/queues/{id}/tokens/history", h.Tokens.History)
	mux.HandleFunc("POST /api/queues/{id}/call-next", h.Tokens.CallNext)
	mux.HandleFunc("PUT /api/queues/{id}/tokens/{tokenId}/position", h.Tokens.Move)
	mux.HandleFunc("POST /api/queues/{id}/tokens/{tokenId}/status", h.Tokens.SetStatus)
	mux.HandleFunc("POST /api/queues/{id}/tokens/{tokenId}/assign", h.Tokens.Assign)
	mux.HandleFunc("POST /api/queues/{id}/tokens/{tokenId}/notify", h.Tokens.Notify)

	mux.HandleFunc("GET /api/public/queues", h.Public.ListQueues)
	mux.HandleFunc("GET /api/public/queues/{id}", h.Public.GetQueue)
	mux.HandleFunc("GET /api/public/tokens/{id}", h.Public.TokenStatus)
	if h.PublicJoin {
		var join http.Handler = http.HandlerFunc(h.Public.Join)
		if h.JoinLimit != nil {
			join = h.JoinLimit(join)
		}
		mux.Handle("POST /api/public/queues/{id}/tokens", join)
	}

	mux.Handle("GET /ws/queues/{id}", h.Stream)

	mux.HandleFunc("GET /healthz", h.Health.Health)
	mux.HandleFunc("GET /readyz", h.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
