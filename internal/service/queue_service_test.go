package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

func TestCreateQueueValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.queues.Create(ctx, f.caller, CreateQueueRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.queues.Create(ctx, f.caller, CreateQueueRequest{Name: "Desk", Description: strings.Repeat("a", 501)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.queues.Create(ctx, f.caller, CreateQueueRequest{Name: "Desk", MaxCapacity: intp(1001)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.queues.Create(ctx, domain.PublicCaller(), CreateQueueRequest{Name: "Desk"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	q, err := f.queues.Create(ctx, f.caller, CreateQueueRequest{Name: "Desk", MaxCapacity: intp(3)})
	require.NoError(t, err)
	assert.True(t, q.Active)
	assert.Equal(t, owner, q.OwnerID)
	assert.Zero(t, q.CurrentOccupancy)
	assert.Zero(t, q.TotalServed)
	assert.Zero(t, q.TotalCancelled)
}

func TestUpdateQueueCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.queue(t, intp(5))
	f.join(t, q.ID, "Alice")
	f.join(t, q.ID, "Bob")

	_, err := f.queues.Update(ctx, f.caller, q.ID, domain.QueuePatch{MaxCapacity: intp(1)})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := f.queues.Update(ctx, f.caller, q.ID, domain.QueuePatch{MaxCapacity: intp(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, *got.MaxCapacity)

	got, err = f.queues.Update(ctx, f.caller, q.ID, domain.QueuePatch{MaxCapacity: intp(0)})
	require.NoError(t, err)
	assert.Nil(t, got.MaxCapacity)

	_, err = f.queues.Update(ctx, domain.OwnerCaller("manager-2"), q.ID, domain.QueuePatch{Name: strPtr("Mine now")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.assertInvariants(t, q.ID)
}

func TestDeleteQueueRequiresEmptyQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.queue(t, nil)
	a := f.join(t, q.ID, "Alice")

	err := f.queues.Delete(ctx, f.caller, q.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrQueueHasActiveTokens)

	_, err = f.tokens.Transition(ctx, f.caller, q.ID, a.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	require.NoError(t, f.queues.Delete(ctx, f.caller, q.ID))

	_, err = f.queues.Get(ctx, f.caller, q.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetToken(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListQueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	open := f.queue(t, nil)
	closed := f.queue(t, nil)
	inactive := false
	_, err := f.queues.Update(ctx, f.caller, closed.ID, domain.QueuePatch{Active: &inactive})
	require.NoError(t, err)

	mine, err := f.queues.List(ctx, f.caller)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	others, err := f.queues.List(ctx, domain.OwnerCaller("manager-2"))
	require.NoError(t, err)
	assert.Empty(t, others)

	public, err := f.queues.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, open.ID, public[0].ID)
}

func TestQueueLocksAreReleased(t *testing.T) {
	locks := NewQueueLocks()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("q")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
	assert.Zero(t, locks.size())
}

func strPtr(s string) *string { return &s }
