package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

const queueColumns = `id, owner_id, name, description, active, max_capacity,
	current_occupancy, total_served, total_cancelled, token_seq, version, created_at, updated_at`

// PostgresStore implements domain.QueueStore on PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store over an open pool
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueue(row rowScanner) (*domain.Queue, error) {
	q := &domain.Queue{}
	var maxCap sql.NullInt64
	err := row.Scan(
		&q.ID, &q.OwnerID, &q.Name, &q.Description, &q.Active, &maxCap,
		&q.CurrentOccupancy, &q.TotalServed, &q.TotalCancelled, &q.TokenSeq, &q.Version,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrQueueNotFound
		}
		return nil, classify(err)
	}
	if maxCap.Valid {
		c := int(maxCap.Int64)
		q.MaxCapacity = &c
	}
	return q, nil
}

// CreateQueue inserts a new queue row
func (s *PostgresStore) CreateQueue(ctx context.Context, q *domain.Queue) error {
	query := `
		INSERT INTO queues (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		q.ID, q.OwnerID, q.Name, q.Description, q.Active, nullInt(q.MaxCapacity),
		q.CurrentOccupancy, q.TotalServed, q.TotalCancelled, q.TokenSeq, q.Version,
		q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", classify(err))
	}
	return nil
}

// GetQueue reads one queue without locking it
func (s *PostgresStore) GetQueue(ctx context.Context, id string) (*domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id = $1`
	return scanQueue(s.db.QueryRowContext(ctx, query, id))
}

// ListQueuesByOwner returns the caller's queues, oldest first
func (s *PostgresStore) ListQueuesByOwner(ctx context.Context, ownerID string) ([]*domain.Queue, error) {
	return s.listQueues(ctx, `SELECT `+queueColumns+` FROM queues WHERE owner_id = $1 ORDER BY created_at`, ownerID)
}

// ListActiveQueues returns queues open to public joins
func (s *PostgresStore) ListActiveQueues(ctx context.Context) ([]*domain.Queue, error) {
	return s.listQueues(ctx, `SELECT `+queueColumns+` FROM queues WHERE active ORDER BY created_at`)
}

// ListQueues returns every queue
func (s *PostgresStore) ListQueues(ctx context.Context) ([]*domain.Queue, error) {
	return s.listQueues(ctx, `SELECT `+queueColumns+` FROM queues ORDER BY created_at`)
}

func (s *PostgresStore) listQueues(ctx context.Context, query string, args ...any) ([]*domain.Queue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", classify(err))
	}
	defer rows.Close()

	out := make([]*domain.Queue, 0)
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		out = append(out, q)
	}
	return out, classify(rows.Err())
}

// Ping checks connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// WithQueueLock opens a transaction, takes the queue row lock and runs fn.
// The lock is held until commit or rollback.
func (s *PostgresStore) WithQueueLock(ctx context.Context, queueID string, fn func(tx domain.QueueTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed",
				slog.String("queue_id", queueID),
				slog.String("error", rbErr.Error()),
			)
		}
	}()

	query := `SELECT ` + queueColumns + ` FROM queues WHERE id = $1 FOR UPDATE`
	q, err := scanQueue(tx.QueryRowContext(ctx, query, queueID))
	if err != nil {
		return err
	}

	if err = fn(&postgresTx{tx: tx, queue: q}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

// postgresTx is the QueueTx of one locked queue
type postgresTx struct {
	tx    *sql.Tx
	queue *domain.Queue
}

func (t *postgresTx) Queue() *domain.Queue { return t.queue }

func (t *postgresTx) SaveQueue(ctx context.Context) error {
	q := t.queue
	query := `
		UPDATE queues
		SET name = $2, description = $3, active = $4, max_capacity = $5,
			current_occupancy = $6, total_served = $7, total_cancelled = $8,
			token_seq = $9, version = $10, updated_at = $11
		WHERE id = $1
	`
	_, err := t.tx.ExecContext(ctx, query,
		q.ID, q.Name, q.Description, q.Active, nullInt(q.MaxCapacity),
		q.CurrentOccupancy, q.TotalServed, q.TotalCancelled,
		q.TokenSeq, q.Version, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", classify(err))
	}
	return nil
}

func (t *postgresTx) DeleteQueue(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM queues WHERE id = $1`, t.queue.ID); err != nil {
		return fmt.Errorf("failed to delete queue: %w", classify(err))
	}
	return nil
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}
