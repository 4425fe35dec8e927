package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
	"github.com/aryan0dhankhar/queueline/internal/observability/tracing"
)

// Deps are the collaborators shared by QueueService and TokenService.
type Deps struct {
	Store     domain.QueueStore
	Publisher domain.Publisher
	Notifier  domain.Notifier
	Locks     *QueueLocks
	Logger    *slog.Logger
	Clock     func() time.Time
	NewID     func() string
}

// engine holds the mutation path both services share.
type engine struct {
	store     domain.QueueStore
	publisher domain.Publisher
	notifier  domain.Notifier
	locks     *QueueLocks
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	tracer    trace.Tracer
}

func newEngine(d Deps) engine {
	e := engine{
		store:     d.Store,
		publisher: d.Publisher,
		notifier:  d.Notifier,
		locks:     d.Locks,
		logger:    d.Logger,
		clock:     d.Clock,
		newID:     d.NewID,
		tracer:    tracing.Tracer("github.com/aryan0dhankhar/queueline/internal/service"),
	}
	if e.publisher == nil {
		e.publisher = domain.NopPublisher{}
	}
	if e.locks == nil {
		e.locks = NewQueueLocks()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// mutation collects what a locked callback wants published once the transaction commits.
type mutation struct {
	tx     domain.QueueTx
	now    time.Time
	events []domain.Event
}

// commit bumps the queue version and persists it. Events emitted afterwards carry the new version.
func (m *mutation) commit(ctx context.Context) error {
	q := m.tx.Queue()
	q.Version++
	q.UpdatedAt = m.now
	return m.tx.SaveQueue(ctx)
}

func (m *mutation) emit(typ domain.EventType, fill func(*domain.Event)) {
	q := m.tx.Queue()
	ev := domain.Event{Type: typ, QueueID: q.ID, Seq: q.Version, At: m.now}
	if fill != nil {
		fill(&ev)
	}
	m.events = append(m.events, ev)
}

func (m *mutation) emitPositions(active []*domain.Token) {
	m.emit(domain.EventTokenPositionsChanged, func(ev *domain.Event) {
		ev.Active = domain.SummarizeAll(active)
	})
}

func (m *mutation) emitOccupancy() {
	q := m.tx.Queue()
	m.emit(domain.EventQueueOccupancyChanged, func(ev *domain.Event) {
		ev.Occupancy = domain.OccupancyOf(q)
	})
}

// mutate runs fn with the queue serialized twice over: the in-process keyed lock and the store's row lock.
// The request context's cancellation is dropped so an abandoned request still commits or rolls back whole.
// Events are published after commit while the keyed lock is still held, which keeps per-queue order.
func (e *engine) mutate(ctx context.Context, op, queueID string, fn func(ctx context.Context, m *mutation) error) error {
	ctx = context.WithoutCancel(ctx)
	if !validID(queueID) {
		return domain.ErrQueueNotFound
	}

	unlock := e.locks.Lock(queueID)
	defer unlock()

	start := time.Now()
	var events []domain.Event
	err := e.store.WithQueueLock(ctx, queueID, func(tx domain.QueueTx) error {
		m := &mutation{tx: tx, now: e.clock()}
		if err := fn(ctx, m); err != nil {
			return err
		}
		events = m.events
		return nil
	})
	metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	if err != nil {
		return err
	}

	for _, ev := range events {
		e.publisher.Publish(ev)
	}
	return nil
}

func (e *engine) startSpan(ctx context.Context, name, queueID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("queue.id", queueID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ownedQueue loads a queue for an owner. Someone else's queue is reported as missing.
func (e *engine) ownedQueue(ctx context.Context, caller domain.Caller, queueID string) (*domain.Queue, error) {
	if !validID(queueID) {
		return nil, domain.ErrQueueNotFound
	}
	q, err := e.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(q) {
		return nil, domain.ErrQueueNotFound
	}
	return q, nil
}

func requireOwner(caller domain.Caller, q *domain.Queue) error {
	if !caller.Owns(q) {
		return domain.ErrQueueNotFound
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
