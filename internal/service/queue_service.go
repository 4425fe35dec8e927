package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

// QueueService is the queue registry: metadata CRUD and read access to counters.
type QueueService struct {
	engine
}

// CreateQueueRequest holds the fields of a new queue
type CreateQueueRequest struct {
	Name        string
	Description string
	MaxCapacity *int
}

// QueueStats summarises a queue's counters and token history.
type QueueStats struct {
	Queue              *domain.Queue
	StatusCounts       map[domain.Status]int
	AvgWaitMinutes     float64
	AvgServiceMinutes  float64
	WaitSamples        int
	ServiceSamples     int
	LongestWaitMinutes int
}

// NewQueueService creates a new queue service
func NewQueueService(d Deps) *QueueService {
	return &QueueService{engine: newEngine(d)}
}

// Create registers a queue owned by the caller.
func (s *QueueService) Create(ctx context.Context, caller domain.Caller, req CreateQueueRequest) (*domain.Queue, error) {
	if caller.IsPublic() {
		return nil, domain.Invalid("owner", "is required")
	}
	q, err := domain.NewQueue(s.newID(), caller.OwnerID, req.Name, req.Description, req.MaxCapacity, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateQueue(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	s.logger.Info("queue created",
		slog.String("queue_id", q.ID),
		slog.String("owner_id", q.OwnerID),
	)
	return q, nil
}

// Get returns one of the caller's queues
func (s *QueueService) Get(ctx context.Context, caller domain.Caller, queueID string) (*domain.Queue, error) {
	return s.ownedQueue(ctx, caller, queueID)
}

// List returns the caller's queues
func (s *QueueService) List(ctx context.Context, caller domain.Caller) ([]*domain.Queue, error) {
	if caller.IsPublic() {
		return []*domain.Queue{}, nil
	}
	return s.store.ListQueuesByOwner(ctx, caller.OwnerID)
}

// ListPublic returns every active queue
func (s *QueueService) ListPublic(ctx context.Context) ([]*domain.Queue, error) {
	return s.store.ListActiveQueues(ctx)
}

// Update patches a queue under its lock. Lowering the cap below current occupancy is a conflict.
func (s *QueueService) Update(ctx context.Context, caller domain.Caller, queueID string, patch domain.QueuePatch) (q *domain.Queue, err error) {
	ctx, span := s.startSpan(ctx, "QueueService.Update", queueID)
	defer func() { endSpan(span, err) }()

	err = s.mutate(ctx, "update_queue", queueID, func(ctx context.Context, m *mutation) error {
		cur := m.tx.Queue()
		if err := requireOwner(caller, cur); err != nil {
			return err
		}
		if err := cur.Apply(patch, m.now); err != nil {
			return err
		}
		if err := m.commit(ctx); err != nil {
			return err
		}
		m.emitOccupancy()
		c := *cur
		q = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a queue that has no active tokens, along with its token history.
func (s *QueueService) Delete(ctx context.Context, caller domain.Caller, queueID string) (err error) {
	ctx, span := s.startSpan(ctx, "QueueService.Delete", queueID)
	defer func() { endSpan(span, err) }()

	err = s.mutate(ctx, "delete_queue", queueID, func(ctx context.Context, m *mutation) error {
		q := m.tx.Queue()
		if err := requireOwner(caller, q); err != nil {
			return err
		}
		if q.CurrentOccupancy > 0 {
			return domain.ErrQueueHasActiveTokens
		}
		return m.tx.DeleteQueue(ctx)
	})
	if err != nil {
		return err
	}
	s.logger.Info("queue deleted", slog.String("queue_id", queueID))
	return nil
}

// Stats aggregates the queue's history. Averages cover terminal tokens that carry the duration.
func (s *QueueService) Stats(ctx context.Context, caller domain.Caller, queueID string) (*QueueStats, error) {
	q, err := s.ownedQueue(ctx, caller, queueID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.store.ListTokens(ctx, queueID, domain.TokenFilter{})
	if err != nil {
		return nil, err
	}

	st := &QueueStats{Queue: q, StatusCounts: make(map[domain.Status]int)}
	var waitSum, serviceSum int
	for _, t := range tokens {
		st.StatusCounts[t.Status]++
		if t.WaitTime != nil {
			waitSum += *t.WaitTime
			st.WaitSamples++
			if *t.WaitTime > st.LongestWaitMinutes {
				st.LongestWaitMinutes = *t.WaitTime
			}
		}
		if t.ServiceTime != nil {
			serviceSum += *t.ServiceTime
			st.ServiceSamples++
		}
	}
	if st.WaitSamples > 0 {
		st.AvgWaitMinutes = float64(waitSum) / float64(st.WaitSamples)
	}
	if st.ServiceSamples > 0 {
		st.AvgServiceMinutes = float64(serviceSum) / float64(st.ServiceSamples)
	}
	return st, nil
}
