package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/aryan0dhankhar/queueline/internal/domain"
)

const tokenColumns = `id, queue_id, display_code, customer_name, email, phone, priority, status,
	position, notes, assigned_to, created_at, called_at, served_at, completed_at, cancelled_at,
	wait_time, service_time`

func scanToken(row rowScanner) (*domain.Token, error) {
	t := &domain.Token{}
	var (
		called, served, completed, cancelled sql.NullTime
		waitTime, serviceTime                sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.QueueID, &t.DisplayCode, &t.Customer.Name, &t.Customer.Email, &t.Customer.Phone,
		&t.Priority, &t.Status, &t.Position, &t.Notes, &t.AssignedTo, &t.Timestamps.Created,
		&called, &served, &completed, &cancelled, &waitTime, &serviceTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, classify(err)
	}
	t.Timestamps.Called = timeFromNull(called)
	t.Timestamps.Served = timeFromNull(served)
	t.Timestamps.Completed = timeFromNull(completed)
	t.Timestamps.Cancelled = timeFromNull(cancelled)
	t.WaitTime = intFromNull(waitTime)
	t.ServiceTime = intFromNull(serviceTime)
	return t, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTokens(ctx context.Context, q queryer, query string, args ...any) ([]*domain.Token, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", classify(err))
	}
	defer rows.Close()

	out := make([]*domain.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

// GetToken reads one token by id
func (s *PostgresStore) GetToken(ctx context.Context, id string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`
	return scanToken(s.db.QueryRowContext(ctx, query, id))
}

// ListTokens returns a queue's tokens. Active-only filters come back in position order,
// anything else in creation order.
func (s *PostgresStore) ListTokens(ctx context.Context, queueID string, f domain.TokenFilter) ([]*domain.Token, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + tokenColumns + ` FROM tokens WHERE queue_id = $1`)
	args := []any{queueID}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		b.WriteString(` AND status = ANY($2)`)
	}
	if activeOnly(f.Statuses) {
		b.WriteString(` ORDER BY position`)
	} else {
		b.WriteString(` ORDER BY created_at`)
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return queryTokens(ctx, s.db, b.String(), args...)
}

func (t *postgresTx) ActiveTokens(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens
		WHERE queue_id = $1 AND status IN ('waiting', 'in_service')
		ORDER BY position`
	return queryTokens(ctx, t.tx, query, t.queue.ID)
}

func (t *postgresTx) Token(ctx context.Context, id string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1 AND queue_id = $2`
	return scanToken(t.tx.QueryRowContext(ctx, query, id, t.queue.ID))
}

func (t *postgresTx) InsertToken(ctx context.Context, tok *domain.Token) error {
	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := t.tx.ExecContext(ctx, query,
		tok.ID, t.queue.ID, tok.DisplayCode, tok.Customer.Name, tok.Customer.Email, tok.Customer.Phone,
		string(tok.Priority), string(tok.Status), tok.Position, tok.Notes, tok.AssignedTo, tok.Timestamps.Created,
		nullTime(tok.Timestamps.Called), nullTime(tok.Timestamps.Served),
		nullTime(tok.Timestamps.Completed), nullTime(tok.Timestamps.Cancelled),
		nullInt(tok.WaitTime), nullInt(tok.ServiceTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", classify(err))
	}
	return nil
}

func (t *postgresTx) UpdateToken(ctx context.Context, tok *domain.Token) error {
	query := `
		UPDATE tokens
		SET status = $3, notes = $4, assigned_to = $5,
			called_at = $6, served_at = $7, completed_at = $8, cancelled_at = $9,
			wait_time = $10, service_time = $11
		WHERE id = $1 AND queue_id = $2
	`
	res, err := t.tx.ExecContext(ctx, query,
		tok.ID, t.queue.ID, string(tok.Status), tok.Notes, tok.AssignedTo,
		nullTime(tok.Timestamps.Called), nullTime(tok.Timestamps.Served),
		nullTime(tok.Timestamps.Completed), nullTime(tok.Timestamps.Cancelled),
		nullInt(tok.WaitTime), nullInt(tok.ServiceTime),
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

// ApplyPositions writes a batch in two statements. The first parks every moved token on the
// negative of its target, the second flips them back, so the partial unique index on active
// positions never sees two rows on one slot.
func (t *postgresTx) ApplyPositions(ctx context.Context, changes []domain.PositionChange) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, len(changes))
	targets := make([]int64, len(changes))
	for i, c := range changes {
		ids[i] = c.TokenID
		targets[i] = int64(c.To)
	}

	park := `
		UPDATE tokens AS t SET position = -c.pos
		FROM unnest($2::uuid[], $3::int[]) AS c(id, pos)
		WHERE t.id = c.id AND t.queue_id = $1
	`
	res, err := t.tx.ExecContext(ctx, park, t.queue.ID, pq.Array(ids), pq.Array(targets))
	if err != nil {
		return fmt.Errorf("failed to park positions: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n != int64(len(changes)) {
		return fmt.Errorf("apply positions: %w", domain.ErrTokenNotFound)
	}

	flip := `UPDATE tokens SET position = -position WHERE queue_id = $1 AND position < 0`
	if _, err := t.tx.ExecContext(ctx, flip, t.queue.ID); err != nil {
		return fmt.Errorf("failed to apply positions: %w", classify(err))
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeFromNull(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
