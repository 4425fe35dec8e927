package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/security/audit"
	"github.com/aryan0dhankhar/queueline/internal/security/auth"
	"github.com/aryan0dhankhar/queueline/internal/security/ratelimit"
)

type claimsContextKey struct{}
type requestIDContextKey struct{}

// requiresAuth reports whether path is an owner route. Public API, websocket and ops routes are open.
func requiresAuth(path string) bool {
	return strings.HasPrefix(path, "/api/") && !strings.HasPrefix(path, "/api/public/")
}

func isOpsPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// RequestID attaches an ID to the context and response and logs the request when it completes
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" || len(reqID) > 64 {
				reqID = generateRequestID()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := context.WithValue(r.Context(), requestIDContextKey{}, reqID)
			start := time.Now()

			next.ServeHTTP(w, r.WithContext(ctx))

			if isOpsPath(r.URL.Path) {
				return
			}
			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// CORS echoes allowed origins and answers preflight requests
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed is shared with the websocket upgrader
func OriginAllowed(allowed []string, origin string) bool {
	return originAllowed(allowed, origin)
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// JWTMiddleware authenticates owner routes and stores the claims in the context
func JWTMiddleware(tm *auth.TokenManager, auditLog *audit.Logger, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil {
				auditLog.LogDenied(r.Context(), RequestIDFromContext(r.Context()), "missing or malformed authorization")
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				auditLog.LogDenied(r.Context(), RequestIDFromContext(r.Context()), "invalid token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware limits owners by ID and anonymous callers by address
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpsPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			key := "ip:" + ClientIP(r)
			if c := GetClaimsFromContext(r.Context()); c != nil {
				key = "owner:" + c.OwnerID
			}
			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StrictLimit applies a tighter per-address limit to a single route
func StrictLimit(limiter *ratelimit.Limiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.AllowStrict(ClientIP(r), perMinute, time.Minute) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many join attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every mutating API call with the status it produced
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodOptions || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ownerID := ""
			if c := GetClaimsFromContext(r.Context()); c != nil {
				ownerID = c.OwnerID
			}
			resource, id := describe(r.URL.Path)
			auditLog.Record(r.Context(), audit.Entry{
				RequestID:  RequestIDFromContext(r.Context()),
				OwnerID:    ownerID,
				Action:     r.Method + " " + r.URL.Path,
				Resource:   resource,
				ResourceID: id,
				Status:     rec.status,
			})
		})
	}
}

// describe picks the innermost resource named in an /api path
func describe(path string) (resource, id string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "queues":
			resource, id = "queue", parts[i+1]
		case "tokens":
			resource, id = "token", parts[i+1]
		}
	}
	if resource == "" {
		resource = "api"
	}
	return resource, id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// CallerFromContext returns the authenticated owner, or the public caller
func CallerFromContext(ctx context.Context) domain.Caller {
	if c := GetClaimsFromContext(ctx); c != nil {
		return domain.OwnerCaller(c.OwnerID)
	}
	return domain.PublicCaller()
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return c
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// ClientIP is the peer address without port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, msg string) {
	code := "unauthorized"
	switch status {
	case http.StatusTooManyRequests:
		code = "rate_limited"
	case http.StatusBadRequest:
		code = "invalid_argument"
	case http.StatusUnsupportedMediaType:
		code = "unsupported_media_type"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

func generateRequestID() string {
	return uuid.NewString()
}
