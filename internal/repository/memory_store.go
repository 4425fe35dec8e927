package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

// MemoryStore implements domain.QueueStore in process memory.
// A transaction works on copies and swaps them in on commit, so a failed callback leaves nothing behind.
type MemoryStore struct {
	mu     sync.RWMutex
	queues map[string]*domain.Queue
	tokens map[string]*domain.Token

	locksMu sync.Mutex
	locks   map[string]*memoryLock

	logger *slog.Logger
}

// NewMemoryStore creates an empty store
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		queues: make(map[string]*domain.Queue),
		tokens: make(map[string]*domain.Token),
		locks:  make(map[string]*memoryLock),
		logger: logger,
	}
}

func (s *MemoryStore) CreateQueue(_ context.Context, q *domain.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[q.ID]; ok {
		return fmt.Errorf("%w: queue %s already exists", domain.ErrConflict, q.ID)
	}
	s.queues[q.ID] = cloneQueue(q)
	return nil
}

func (s *MemoryStore) GetQueue(_ context.Context, id string) (*domain.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[id]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	return cloneQueue(q), nil
}

func (s *MemoryStore) ListQueuesByOwner(_ context.Context, ownerID string) ([]*domain.Queue, error) {
	return s.filterQueues(func(q *domain.Queue) bool { return q.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListActiveQueues(_ context.Context) ([]*domain.Queue, error) {
	return s.filterQueues(func(q *domain.Queue) bool { return q.Active }), nil
}

func (s *MemoryStore) ListQueues(_ context.Context) ([]*domain.Queue, error) {
	return s.filterQueues(func(*domain.Queue) bool { return true }), nil
}

func (s *MemoryStore) filterQueues(keep func(*domain.Queue) bool) []*domain.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Queue, 0)
	for _, q := range s.queues {
		if keep(q) {
			out = append(out, cloneQueue(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) GetToken(_ context.Context, id string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) ListTokens(_ context.Context, queueID string, f domain.TokenFilter) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokensOf(queueID, f), nil
}

// tokensOf must be called with mu held.
func (s *MemoryStore) tokensOf(queueID string, f domain.TokenFilter) []*domain.Token {
	want := make(map[domain.Status]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		want[st] = true
	}
	out := make([]*domain.Token, 0)
	for _, t := range s.tokens {
		if t.QueueID != queueID {
			continue
		}
		if len(want) > 0 && !want[t.Status] {
			continue
		}
		out = append(out, cloneToken(t))
	}
	if activeOnly(f.Statuses) {
		domain.SortByPosition(out)
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Timestamps.Created.Before(out[j].Timestamps.Created)
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

type memoryLock struct {
	mu   sync.Mutex
	refs int
}

// lockQueue holds the queue's mutex until the returned func runs.
// The entry is dropped once nobody holds or waits on it, so unknown IDs leave nothing behind.
func (s *MemoryStore) lockQueue(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &memoryLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *MemoryStore) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func (s *MemoryStore) WithQueueLock(ctx context.Context, queueID string, fn func(tx domain.QueueTx) error) error {
	unlock := s.lockQueue(queueID)
	defer unlock()

	s.mu.RLock()
	q, ok := s.queues[queueID]
	if !ok {
		s.mu.RUnlock()
		return domain.ErrQueueNotFound
	}
	tx := &memoryTx{
		queue:  cloneQueue(q),
		tokens: make(map[string]*domain.Token),
		dirty:  make(map[string]bool),
	}
	for _, t := range s.tokensOf(queueID, domain.TokenFilter{}) {
		tx.tokens[t.ID] = t
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := tx.queue.ID
	if tx.deleted {
		delete(s.queues, id)
		for tid, t := range s.tokens {
			if t.QueueID == id {
				delete(s.tokens, tid)
			}
		}
		return nil
	}

	taken := make(map[int]string)
	for _, t := range tx.tokens {
		if !t.Status.Active() {
			continue
		}
		if other, dup := taken[t.Position]; dup {
			s.logger.Warn("rejected commit with duplicate active position",
				slog.String("queue_id", id),
				slog.Int("position", t.Position),
			)
			return fmt.Errorf("%w: tokens %s and %s share active position %d", domain.ErrConflict, other, t.ID, t.Position)
		}
		taken[t.Position] = t.ID
	}

	if tx.queueDirty {
		s.queues[id] = tx.queue
	}
	for tid := range tx.dirty {
		s.tokens[tid] = tx.tokens[tid]
	}
	return nil
}

type memoryTx struct {
	queue      *domain.Queue
	tokens     map[string]*domain.Token
	dirty      map[string]bool
	queueDirty bool
	deleted    bool
}

func (tx *memoryTx) Queue() *domain.Queue { return tx.queue }

func (tx *memoryTx) ActiveTokens(context.Context) ([]*domain.Token, error) {
	out := make([]*domain.Token, 0)
	for _, t := range tx.tokens {
		if t.Status.Active() {
			out = append(out, cloneToken(t))
		}
	}
	domain.SortByPosition(out)
	return out, nil
}

func (tx *memoryTx) Token(_ context.Context, id string) (*domain.Token, error) {
	t, ok := tx.tokens[id]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (tx *memoryTx) InsertToken(_ context.Context, t *domain.Token) error {
	if _, ok := tx.tokens[t.ID]; ok {
		return fmt.Errorf("%w: token %s already exists", domain.ErrConflict, t.ID)
	}
	c := cloneToken(t)
	c.QueueID = tx.queue.ID
	tx.tokens[t.ID] = c
	tx.dirty[t.ID] = true
	return nil
}

func (tx *memoryTx) UpdateToken(_ context.Context, t *domain.Token) error {
	cur, ok := tx.tokens[t.ID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	c := cloneToken(t)
	c.QueueID = cur.QueueID
	c.Position = cur.Position
	tx.tokens[t.ID] = c
	tx.dirty[t.ID] = true
	return nil
}

func (tx *memoryTx) ApplyPositions(_ context.Context, changes []domain.PositionChange) error {
	for _, ch := range changes {
		if _, ok := tx.tokens[ch.TokenID]; !ok {
			return fmt.Errorf("apply positions: %w", domain.ErrTokenNotFound)
		}
	}
	for _, ch := range changes {
		tx.tokens[ch.TokenID].Position = ch.To
		tx.dirty[ch.TokenID] = true
	}
	return nil
}

func (tx *memoryTx) SaveQueue(context.Context) error {
	tx.queueDirty = true
	return nil
}

func (tx *memoryTx) DeleteQueue(context.Context) error {
	tx.deleted = true
	return nil
}

func activeOnly(statuses []domain.Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if !st.Active() {
			return false
		}
	}
	return true
}

func cloneQueue(q *domain.Queue) *domain.Queue {
	c := *q
	if q.MaxCapacity != nil {
		v := *q.MaxCapacity
		c.MaxCapacity = &v
	}
	return &c
}

func cloneToken(t *domain.Token) *domain.Token {
	c := *t
	c.Timestamps.Called = cloneTime(t.Timestamps.Called)
	c.Timestamps.Served = cloneTime(t.Timestamps.Served)
	c.Timestamps.Completed = cloneTime(t.Timestamps.Completed)
	c.Timestamps.Cancelled = cloneTime(t.Timestamps.Cancelled)
	c.WaitTime = cloneInt(t.WaitTime)
	c.ServiceTime = cloneInt(t.ServiceTime)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
