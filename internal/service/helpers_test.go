package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/repository"
)

const owner = "manager-1"

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ev domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *recordingPublisher) snapshot() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type fakeNotifier struct {
	joined   chan domain.JoinNotice
	messages chan domain.MessageNotice
	err      error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		joined:   make(chan domain.JoinNotice, 16),
		messages: make(chan domain.MessageNotice, 16),
	}
}

func (n *fakeNotifier) NotifyJoined(_ context.Context, j domain.JoinNotice) error {
	n.joined <- j
	return n.err
}

func (n *fakeNotifier) NotifyMessage(_ context.Context, m domain.MessageNotice) error {
	n.messages <- m
	return n.err
}

// flakyStore fails ApplyPositions on demand to exercise rollback.
// beforeList, when set, runs ahead of every ListTokens so a test can commit between two reads.
type flakyStore struct {
	*repository.MemoryStore
	failPositions bool

	mu         sync.Mutex
	beforeList func()
}

func (s *flakyStore) ListTokens(ctx context.Context, queueID string, f domain.TokenFilter) ([]*domain.Token, error) {
	s.mu.Lock()
	hook := s.beforeList
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.MemoryStore.ListTokens(ctx, queueID, f)
}

func (s *flakyStore) setBeforeList(fn func()) {
	s.mu.Lock()
	s.beforeList = fn
	s.mu.Unlock()
}

func (s *flakyStore) WithQueueLock(ctx context.Context, queueID string, fn func(tx domain.QueueTx) error) error {
	return s.MemoryStore.WithQueueLock(ctx, queueID, func(tx domain.QueueTx) error {
		return fn(&flakyTx{QueueTx: tx, fail: s.failPositions})
	})
}

type flakyTx struct {
	domain.QueueTx
	fail bool
}

func (tx *flakyTx) ApplyPositions(ctx context.Context, changes []domain.PositionChange) error {
	if tx.fail && len(changes) > 0 {
		return errors.New("storage went away mid-batch")
	}
	return tx.QueueTx.ApplyPositions(ctx, changes)
}

type fixture struct {
	store    *flakyStore
	clock    *fakeClock
	events   *recordingPublisher
	notifier *fakeNotifier
	queues   *QueueService
	tokens   *TokenService
	caller   domain.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &flakyStore{MemoryStore: repository.NewMemoryStore(nil)},
		clock:    &fakeClock{now: base},
		events:   &recordingPublisher{},
		notifier: newFakeNotifier(),
		caller:   domain.OwnerCaller(owner),
	}
	deps := Deps{
		Store:     f.store,
		Publisher: f.events,
		Notifier:  f.notifier,
		Locks:     NewQueueLocks(),
		Clock:     f.clock.Now,
		NewID:     uuid.NewString,
	}
	f.queues = NewQueueService(deps)
	f.tokens = NewTokenService(deps, 5)
	return f
}

func (f *fixture) queue(t *testing.T, capacity *int) *domain.Queue {
	t.Helper()
	q, err := f.queues.Create(context.Background(), f.caller, CreateQueueRequest{Name: "Front desk", MaxCapacity: capacity})
	require.NoError(t, err)
	return q
}

func (f *fixture) join(t *testing.T, queueID, name string) *domain.Token {
	t.Helper()
	tok, err := f.tokens.Enqueue(context.Background(), f.caller, queueID, EnqueueRequest{
		Customer: domain.Customer{Name: name},
	})
	require.NoError(t, err)
	return tok
}

// assertInvariants checks contiguity of the active list and that occupancy matches it.
func (f *fixture) assertInvariants(t *testing.T, queueID string) []*domain.Token {
	t.Helper()
	ctx := context.Background()
	q, err := f.store.GetQueue(ctx, queueID)
	require.NoError(t, err)
	active, err := f.store.ListTokens(ctx, queueID, domain.TokenFilter{
		Statuses: []domain.Status{domain.StatusWaiting, domain.StatusInService},
	})
	require.NoError(t, err)
	require.NoError(t, domain.CheckContiguity(active))
	require.Equal(t, len(active), q.CurrentOccupancy)
	if q.MaxCapacity != nil {
		require.LessOrEqual(t, q.CurrentOccupancy, *q.MaxCapacity)
	}
	return active
}

func positionOf(t *testing.T, f *fixture, tokenID string) int {
	t.Helper()
	tok, err := f.store.GetToken(context.Background(), tokenID)
	require.NoError(t, err)
	return tok.Position
}

func intp(n int) *int { return &n }
