package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

func seedQueue(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	q, err := domain.NewQueue(id, "owner-1", "Front desk", "", nil, pgNow)
	require.NoError(t, err)
	require.NoError(t, s.CreateQueue(context.Background(), q))
}

func insertWaiting(ctx context.Context, tx domain.QueueTx, id string) error {
	active, err := tx.ActiveTokens(ctx)
	if err != nil {
		return err
	}
	tok := &domain.Token{
		ID:         id,
		Customer:   domain.Customer{Name: "Customer " + id},
		Priority:   domain.PriorityNormal,
		Status:     domain.StatusWaiting,
		Position:   domain.NextPosition(active),
		Timestamps: domain.Timestamps{Created: pgNow},
	}
	if err := tx.InsertToken(ctx, tok); err != nil {
		return err
	}
	tx.Queue().IncrementOccupancy(1)
	return tx.SaveQueue(ctx)
}

func TestMemoryStoreFailedCallbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")
	boom := errors.New("boom")

	err := s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		if err := insertWaiting(ctx, tx, "t1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	q, err := s.GetQueue(ctx, "q1")
	require.NoError(t, err)
	assert.Zero(t, q.CurrentOccupancy)
	_, err = s.GetToken(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreRejectsDuplicateActivePosition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")

	require.NoError(t, s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		if err := insertWaiting(ctx, tx, "t1"); err != nil {
			return err
		}
		return insertWaiting(ctx, tx, "t2")
	}))

	err := s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		return tx.ApplyPositions(ctx, []domain.PositionChange{{TokenID: "t2", From: 2, To: 1}})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	tok, err := s.GetToken(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, 2, tok.Position)
}

func TestMemoryStoreSerializesPerQueue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
				return insertWaiting(ctx, tx, fmt.Sprintf("t%02d", i))
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	q, err := s.GetQueue(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 50, q.CurrentOccupancy)

	active, err := s.ListTokens(ctx, "q1", domain.TokenFilter{Statuses: []domain.Status{domain.StatusWaiting}})
	require.NoError(t, err)
	require.Len(t, active, 50)
	assert.NoError(t, domain.CheckContiguity(active))
}

func TestMemoryStoreUpdateTokenKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")

	require.NoError(t, s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		return insertWaiting(ctx, tx, "t1")
	}))
	require.NoError(t, s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		tok, err := tx.Token(ctx, "t1")
		if err != nil {
			return err
		}
		tok.Position = 99
		tok.AssignedTo = "desk 3"
		return tx.UpdateToken(ctx, tok)
	}))

	tok, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, tok.Position)
	assert.Equal(t, "desk 3", tok.AssignedTo)
}

func TestMemoryStoreDeleteQueueDropsTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")
	require.NoError(t, s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		return insertWaiting(ctx, tx, "t1")
	}))

	require.NoError(t, s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
		return tx.DeleteQueue(ctx)
	}))

	_, err := s.GetQueue(ctx, "q1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetToken(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = s.WithQueueLock(ctx, "q1", func(domain.QueueTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreDropsIdleQueueLocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	seedQueue(t, s, "q1")

	for i := 0; i < 50; i++ {
		err := s.WithQueueLock(ctx, fmt.Sprintf("missing-%d", i), func(domain.QueueTx) error { return nil })
		require.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Zero(t, s.lockCount())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithQueueLock(ctx, "q1", func(tx domain.QueueTx) error {
				return insertWaiting(ctx, tx, fmt.Sprintf("t%d", i))
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, s.lockCount())

	q, err := s.GetQueue(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 20, q.CurrentOccupancy)
}
