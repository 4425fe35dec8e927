package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
)

// Violation is one broken queue invariant found by the auditor
type Violation struct {
	QueueID string
	Kind    string
	Detail  string
}

const (
	ViolationContiguity = "contiguity"
	ViolationOccupancy  = "occupancy"
	ViolationCapacity   = "capacity"
)

// Auditor periodically re-checks every queue's invariants under its lock.
// It only reads and reports; repairs are left to an operator.
type Auditor struct {
	store    domain.QueueStore
	logger   *slog.Logger
	interval time.Duration
}

// NewAuditor creates a new invariant auditor
func NewAuditor(store domain.QueueStore, logger *slog.Logger, interval time.Duration) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		store:    store,
		logger:   logger.With(slog.String("component", "auditor")),
		interval: interval,
	}
}

// Start runs the audit loop until ctx is cancelled
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("auditor started", slog.Duration("interval", a.interval))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auditor stopped")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce audits every queue and returns what it found
func (a *Auditor) RunOnce(ctx context.Context) []Violation {
	queues, err := a.store.ListQueues(ctx)
	if err != nil {
		a.logger.Error("failed to list queues", slog.String("error", err.Error()))
		return nil
	}

	var found []Violation
	for _, q := range queues {
		if ctx.Err() != nil {
			break
		}
		vs, err := a.auditQueue(ctx, q.ID)
		if err != nil {
			a.logger.Warn("queue audit failed", slog.String("queue_id", q.ID), slog.String("error", err.Error()))
			continue
		}
		for _, v := range vs {
			metrics.ObserveViolation(v.Kind)
			a.logger.Error("queue invariant violated",
				slog.String("queue_id", v.QueueID),
				slog.String("kind", v.Kind),
				slog.String("detail", v.Detail),
			)
		}
		found = append(found, vs...)
	}

	a.logger.Debug("audit complete", slog.Int("queues", len(queues)), slog.Int("violations", len(found)))
	return found
}

func (a *Auditor) auditQueue(ctx context.Context, queueID string) ([]Violation, error) {
	var out []Violation
	err := a.store.WithQueueLock(ctx, queueID, func(tx domain.QueueTx) error {
		q := tx.Queue()
		active, err := tx.ActiveTokens(ctx)
		if err != nil {
			return err
		}
		out = check(q, active)
		return nil
	})
	return out, err
}

func check(q *domain.Queue, active []*domain.Token) []Violation {
	var out []Violation
	if err := domain.CheckContiguity(active); err != nil {
		out = append(out, Violation{QueueID: q.ID, Kind: ViolationContiguity, Detail: err.Error()})
	}
	if q.CurrentOccupancy != len(active) {
		out = append(out, Violation{
			QueueID: q.ID,
			Kind:    ViolationOccupancy,
			Detail:  fmt.Sprintf("occupancy counter is %d but %d tokens are active", q.CurrentOccupancy, len(active)),
		})
	}
	if q.MaxCapacity != nil && len(active) > *q.MaxCapacity {
		out = append(out, Violation{
			QueueID: q.ID,
			Kind:    ViolationCapacity,
			Detail:  fmt.Sprintf("%d active tokens exceed capacity %d", len(active), *q.MaxCapacity),
		})
	}
	return out
}
