package domain

import "context"

// TokenFilter narrows ListTokens. An empty Statuses matches every status.
type TokenFilter struct {
	Statuses []Status
	Limit    int
}

// QueueStore is the persistence boundary for queues and tokens.
// Reads outside WithQueueLock are authoritative at the moment they run but may be stale by the time they return.
type QueueStore interface {
	CreateQueue(ctx context.Context, q *Queue) error
	GetQueue(ctx context.Context, id string) (*Queue, error)
	ListQueuesByOwner(ctx context.Context, ownerID string) ([]*Queue, error)
	ListActiveQueues(ctx context.Context) ([]*Queue, error)
	ListQueues(ctx context.Context) ([]*Queue, error)
	GetToken(ctx context.Context, id string) (*Token, error)
	ListTokens(ctx context.Context, queueID string, f TokenFilter) ([]*Token, error)

	// WithQueueLock runs fn inside a transaction holding the queue's row lock.
	// fn returning an error rolls back every write it made.
	WithQueueLock(ctx context.Context, queueID string, fn func(tx QueueTx) error) error

	Ping(ctx context.Context) error
}

// QueueTx is the write side of one locked queue.
type QueueTx interface {
	// Queue is the locked snapshot. Mutations to it are persisted with SaveQueue.
	Queue() *Queue
	// ActiveTokens returns waiting and in_service tokens ordered by position.
	ActiveTokens(ctx context.Context) ([]*Token, error)
	Token(ctx context.Context, id string) (*Token, error)
	InsertToken(ctx context.Context, t *Token) error
	// UpdateToken persists everything except Position.
	UpdateToken(ctx context.Context, t *Token) error
	ApplyPositions(ctx context.Context, changes []PositionChange) error
	SaveQueue(ctx context.Context) error
	DeleteQueue(ctx context.Context) error
}

// JoinNotice is handed to the mail collaborator after a successful enqueue.
type JoinNotice struct {
	Email         string
	CustomerName  string
	QueueName     string
	Position      int
	EstimatedWait string
	DisplayCode   string
}

// MessageNotice carries a manager-authored message to one customer.
type MessageNotice struct {
	Email        string
	CustomerName string
	QueueName    string
	DisplayCode  string
	Subject      string
	Message      string
}

// Notifier delivers customer email. Failures never affect queue state.
type Notifier interface {
	NotifyJoined(ctx context.Context, n JoinNotice) error
	NotifyMessage(ctx context.Context, n MessageNotice) error
}
