package audit

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one audited action
type Entry struct {
	RequestID  string
	OwnerID    string
	Action     string
	Resource   string
	ResourceID string
	Status     int
	Details    string
}

type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), now: time.Now}
}

// Record writes e at info level, or warn when the request was refused
func (al *Logger) Record(ctx context.Context, e Entry) {
	level := slog.LevelInfo
	if e.Status >= 400 {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit",
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.String("owner_id", e.OwnerID),
		slog.Int("status", e.Status),
		slog.String("details", e.Details),
		slog.String("request_id", e.RequestID),
		slog.Time("timestamp", al.now()),
	)
}

func (al *Logger) LogDenied(ctx context.Context, requestID, reason string) {
	al.Record(ctx, Entry{RequestID: requestID, Action: "access_denied", Resource: "api", Status: 401, Details: reason})
}
