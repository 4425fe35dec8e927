package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/events"
	"github.com/aryan0dhankhar/queueline/internal/realtime"
	"github.com/aryan0dhankhar/queueline/internal/repository"
	"github.com/aryan0dhankhar/queueline/internal/security/audit"
	"github.com/aryan0dhankhar/queueline/internal/security/auth"
	"github.com/aryan0dhankhar/queueline/internal/security/middleware"
	"github.com/aryan0dhankhar/queueline/internal/service"
)

const testSecret = "handler-test-secret-0123456789abcdef"

type testServer struct {
	*httptest.Server
	tokens *auth.TokenManager
	hub    *realtime.Hub
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, publicJoin bool, checks map[string]Check) *testServer {
	t.Helper()
	log := quietLogger()
	store := repository.NewMemoryStore(log)
	hub := realtime.NewHub(16, log)
	dispatcher := events.NewDispatcher(64, log, hub)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	deps := service.Deps{Store: store, Publisher: dispatcher, Logger: log}
	queues := service.NewQueueService(deps)
	tokens := service.NewTokenService(deps, 5)

	if checks == nil {
		checks = map[string]Check{"store": store.Ping}
	}
	mux := NewRouter(Handlers{
		Queues:     NewQueueHandler(queues, log),
		Tokens:     NewTokenHandler(tokens, log),
		Public:     NewPublicHandler(queues, tokens, log),
		Stream:     NewStreamHandler(tokens, hub, log, nil),
		Health:     NewHealthHandler(checks, log),
		PublicJoin: publicJoin,
	})

	tm := auth.NewTokenManager(testSecret, "queueline")
	srv := httptest.NewServer(middleware.JWTMiddleware(tm, audit.NewLogger(log), log)(mux))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, tokens: tm, hub: hub}
}

func (s *testServer) bearer(t *testing.T, ownerID string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(ownerID, "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, method, path, authz string, body any, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) createQueue(t *testing.T, authz string, body map[string]any) QueueResponse {
	t.Helper()
	var q QueueResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues", authz, body, &q))
	return q
}

func TestOwnerFlow(t *testing.T) {
	s := newTestServer(t, true, nil)
	owner := s.bearer(t, "manager-1")

	q := s.createQueue(t, owner, map[string]any{"name": "Barber", "maxCapacity": 5})
	assert.True(t, q.Active)
	assert.Equal(t, 5, *q.MaxCapacity)

	var ids []string
	for _, name := range []string{"Alice", "Bob", "Cara"} {
		var tok TokenResponse
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens", owner,
			map[string]any{"customerName": name, "priority": "high"}, &tok))
		assert.Equal(t, domain.StatusWaiting, tok.Status)
		ids = append(ids, tok.ID)
	}

	var moved MoveResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/queues/"+q.ID+"/tokens/"+ids[2]+"/position", owner,
		map[string]any{"position": 1}, &moved))
	assert.Equal(t, 1, moved.Token.Position)
	require.Len(t, moved.Active, 3)
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{moved.Active[0].ID, moved.Active[1].ID, moved.Active[2].ID})

	var called TokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call-next", owner, nil, &called))
	assert.Equal(t, ids[2], called.ID)
	assert.Equal(t, domain.StatusInService, called.Status)
	assert.NotNil(t, called.CalledAt)

	var served TokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens/"+ids[2]+"/status", owner,
		map[string]any{"status": "served", "notes": "done"}, &served))
	assert.Equal(t, domain.StatusServed, served.Status)
	assert.Zero(t, served.Position)

	var active []TokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/tokens", owner, nil, &active))
	require.Len(t, active, 2)
	assert.Equal(t, 1, active[0].Position)
	assert.Equal(t, 2, active[1].Position)

	var history []TokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/tokens/history?status=served", owner, nil, &history))
	require.Len(t, history, 1)
	assert.Equal(t, ids[2], history[0].ID)

	var stats StatsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/stats", owner, nil, &stats))
	assert.Equal(t, 1, stats.Queue.TotalServed)
	assert.Equal(t, 2, stats.Queue.CurrentOccupancy)
	assert.Equal(t, 1, stats.StatusCounts[domain.StatusServed])

	var assigned TokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens/"+ids[0]+"/assign", owner,
		map[string]any{"assignedTo": "Chair 2"}, &assigned))
	assert.Equal(t, "Chair 2", assigned.AssignedTo)

	var queues []QueueResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues", owner, nil, &queues))
	assert.Len(t, queues, 1)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, true, nil)
	owner := s.bearer(t, "manager-1")
	q := s.createQueue(t, owner, map[string]any{"name": "Clinic", "maxCapacity": 1})

	var tok TokenResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens", owner,
		map[string]any{"customerName": "Alice"}, &tok))

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		body   any
		status int
	}{
		{"no auth", http.MethodGet, "/api/queues", "", nil, http.StatusUnauthorized},
		{"unknown queue", http.MethodGet, "/api/queues/6f1c0b39-1e0a-4f7b-9d61-7d1c9b7f0a11", owner, nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/queues/not-a-uuid", owner, nil, http.StatusNotFound},
		{"other owner", http.MethodGet, "/api/queues/" + q.ID, s.bearer(t, "manager-2"), nil, http.StatusNotFound},
		{"capacity", http.MethodPost, "/api/queues/" + q.ID + "/tokens", owner, map[string]any{"customerName": "Bob"}, http.StatusConflict},
		{"short name", http.MethodPost, "/api/queues", owner, map[string]any{"name": "x"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/queues", owner, `{"name":"Desk","colour":"red"}`, http.StatusBadRequest},
		{"broken json", http.MethodPost, "/api/queues", owner, `{"name":`, http.StatusBadRequest},
		{"bad status", http.MethodPost, "/api/queues/" + q.ID + "/tokens/" + tok.ID + "/status", owner, map[string]any{"status": "teleported"}, http.StatusBadRequest},
		{"illegal transition", http.MethodPost, "/api/queues/" + q.ID + "/tokens/" + tok.ID + "/status", owner, map[string]any{"status": "served"}, http.StatusConflict},
		{"position out of range", http.MethodPut, "/api/queues/" + q.ID + "/tokens/" + tok.ID + "/position", owner, map[string]any{"position": 2}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/queues/" + q.ID + "/tokens/history?limit=-1", owner, nil, http.StatusBadRequest},
		{"delete non-empty", http.MethodDelete, "/api/queues/" + q.ID, owner, nil, http.StatusConflict},
		{"notify without email", http.MethodPost, "/api/queues/" + q.ID + "/tokens/" + tok.ID + "/notify", owner, map[string]any{"message": "hi"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, s.do(t, tc.method, tc.path, tc.authz, tc.body, nil))
		})
	}
}

func TestCallNextOnEmptyQueue(t *testing.T) {
	s := newTestServer(t, true, nil)
	owner := s.bearer(t, "manager-1")
	q := s.createQueue(t, owner, map[string]any{"name": "Empty"})

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call-next", owner, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/queues/"+q.ID, owner, nil, nil))
}

func TestPublicJoinAndStatus(t *testing.T) {
	s := newTestServer(t, true, nil)
	owner := s.bearer(t, "manager-1")
	q := s.createQueue(t, owner, map[string]any{"name": "Bakery"})

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/public/queues/"+q.ID+"/tokens", "",
		map[string]any{"customerName": "Dana"}, nil))

	var first, second PublicTokenResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/public/queues/"+q.ID+"/tokens", "",
		map[string]any{"customerName": "Dana", "email": "dana@example.com"}, &first))
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/public/queues/"+q.ID+"/tokens", "",
		map[string]any{"customerName": "Eli", "email": "eli@example.com"}, &second))
	assert.Equal(t, 2, second.Token.Position)
	assert.Equal(t, 1, second.PeopleAhead)
	assert.Equal(t, "10 minutes", second.EstimatedWait)
	assert.Equal(t, "Bakery", second.QueueName)

	var status PublicTokenResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/public/tokens/"+first.Token.ID, "", nil, &status))
	assert.Equal(t, 1, status.Token.Position)
	assert.Equal(t, "5 minutes", status.EstimatedWait)

	resp, err := http.Get(s.URL + "/api/public/queues/" + q.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "dana@example.com")
	assert.Contains(t, string(raw), "Dana")

	var list []PublicQueueResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/public/queues", "", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Occupancy.Current)

	inactive := false
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/api/queues/"+q.ID, owner, map[string]any{"isActive": inactive}, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/public/queues/"+q.ID, "", nil, nil))
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/public/queues/"+q.ID+"/tokens", "",
		map[string]any{"customerName": "Fay", "email": "fay@example.com"}, nil))
}

func TestPublicJoinDisabled(t *testing.T) {
	s := newTestServer(t, false, nil)
	owner := s.bearer(t, "manager-1")
	q := s.createQueue(t, owner, map[string]any{"name": "Bakery"})

	code := s.do(t, http.MethodPost, "/api/public/queues/"+q.ID+"/tokens", "",
		map[string]any{"customerName": "Dana", "email": "dana@example.com"}, nil)
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, code)
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, true, map[string]Check{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	var body ReadinessResponse
	resp, err := http.Get(s.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "ok", body.Checks["store"])
	assert.Contains(t, body.Checks["redis"], "connection refused")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil, nil))
}

func TestStreamSnapshotThenEvents(t *testing.T) {
	s := newTestServer(t, true, nil)
	owner := s.bearer(t, "manager-1")
	q := s.createQueue(t, owner, map[string]any{"name": "Pharmacy"})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens", owner,
		map[string]any{"customerName": "Alice"}, nil))

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/queues/" + q.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap.Type)
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "Alice", snap.Active[0].CustomerName)

	require.Eventually(t, func() bool { return s.hub.Count(q.ID) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/tokens", owner,
		map[string]any{"customerName": "Bob"}, nil))

	// Alice's events may still be in flight; they are already covered by the snapshot.
	var types []domain.EventType
	for len(types) < 3 {
		var ev domain.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Seq <= snap.Seq {
			continue
		}
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventTokenEnqueued,
		domain.EventTokenPositionsChanged,
		domain.EventQueueOccupancyChanged,
	}, types)
}

func TestStreamUnknownQueue(t *testing.T) {
	s := newTestServer(t, true, nil)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/queues/6f1c0b39-1e0a-4f7b-9d61-7d1c9b7f0a11"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, s.hub.Count("6f1c0b39-1e0a-4f7b-9d61-7d1c9b7f0a11"))
}
