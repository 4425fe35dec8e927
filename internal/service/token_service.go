package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
)

const (
	defaultMinutesPerPosition = 5
	notifyTimeout             = 30 * time.Second
	maxStaffLabelLen          = 100
	consistentReadAttempts    = 3
)

// TokenService is the ordering engine: enqueue, reorder, status transitions and call-next.
type TokenService struct {
	engine
	minutesPerPosition int
}

// EnqueueRequest is the customer-supplied part of a join.
type EnqueueRequest struct {
	Customer domain.Customer
	Priority string
	Notes    string
}

// TokenStatus is the public view of a single token.
type TokenStatus struct {
	Token         *domain.Token
	QueueName     string
	PeopleAhead   int
	EstimatedWait string
}

// NewTokenService creates a new token service
func NewTokenService(d Deps, minutesPerPosition int) *TokenService {
	if minutesPerPosition <= 0 {
		minutesPerPosition = defaultMinutesPerPosition
	}
	return &TokenService{engine: newEngine(d), minutesPerPosition: minutesPerPosition}
}

// Enqueue appends a waiting token. Public callers must give an email and may join any active queue;
// owners may join only their own queues.
func (s *TokenService) Enqueue(ctx context.Context, caller domain.Caller, queueID string, req EnqueueRequest) (tok *domain.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Enqueue", queueID)
	defer func() { endSpan(span, err) }()

	if err := req.Customer.Validate(); err != nil {
		return nil, err
	}
	if caller.IsPublic() && req.Customer.Email == "" {
		return nil, domain.ErrEmailRequired
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	var queueName string
	err = s.mutate(ctx, "enqueue", queueID, func(ctx context.Context, m *mutation) error {
		q := m.tx.Queue()
		if !caller.IsPublic() {
			if err := requireOwner(caller, q); err != nil {
				return err
			}
		}
		if err := q.CanAccept(); err != nil {
			return err
		}
		active, err := m.tx.ActiveTokens(ctx)
		if err != nil {
			return err
		}

		tok = &domain.Token{
			ID:          s.newID(),
			QueueID:     q.ID,
			DisplayCode: q.NextDisplayCode(),
			Customer:    req.Customer,
			Priority:    priority,
			Status:      domain.StatusWaiting,
			Position:    domain.NextPosition(active),
			Timestamps:  domain.Timestamps{Created: m.now},
		}
		tok.AppendNote(req.Notes)
		if err := m.tx.InsertToken(ctx, tok); err != nil {
			return err
		}
		q.IncrementOccupancy(1)
		if err := m.commit(ctx); err != nil {
			return err
		}
		queueName = q.Name

		summary := domain.Summarize(tok)
		m.emit(domain.EventTokenEnqueued, func(ev *domain.Event) { ev.Token = &summary })
		m.emitPositions(append(active, tok))
		m.emitOccupancy()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("token enqueued",
		slog.String("queue_id", queueID),
		slog.String("token_id", tok.ID),
		slog.Int("position", tok.Position),
		slog.Bool("public", caller.IsPublic()),
	)

	if tok.Customer.Email != "" {
		s.sendJoined(domain.JoinNotice{
			Email:         tok.Customer.Email,
			CustomerName:  tok.Customer.Name,
			QueueName:     queueName,
			Position:      tok.Position,
			EstimatedWait: s.EstimateWait(tok.Position),
			DisplayCode:   tok.DisplayCode,
		})
	}
	return tok, nil
}

// Reorder moves a waiting token to newPosition within 1..N and returns it with the new active list.
func (s *TokenService) Reorder(ctx context.Context, caller domain.Caller, queueID, tokenID string, newPosition int) (tok *domain.Token, active []*domain.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Reorder", queueID)
	defer func() { endSpan(span, err) }()

	if !validID(tokenID) {
		return nil, nil, domain.ErrTokenNotFound
	}

	err = s.mutate(ctx, "reorder", queueID, func(ctx context.Context, m *mutation) error {
		if err := requireOwner(caller, m.tx.Queue()); err != nil {
			return err
		}
		t, err := m.tx.Token(ctx, tokenID)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusWaiting {
			return domain.ErrTokenNotWaiting
		}
		list, err := m.tx.ActiveTokens(ctx)
		if err != nil {
			return err
		}
		changes, err := domain.PlanMove(list, tokenID, newPosition)
		if err != nil {
			return err
		}
		active = list
		tok = domain.FindToken(list, tokenID)
		if len(changes) == 0 {
			return nil
		}

		if err := m.tx.ApplyPositions(ctx, changes); err != nil {
			return err
		}
		domain.ApplyChanges(list, changes)
		domain.SortByPosition(list)
		if err := m.commit(ctx); err != nil {
			return err
		}
		m.emitPositions(list)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tok, active, nil
}

// Transition moves a token along the state machine and keeps the active list contiguous.
func (s *TokenService) Transition(ctx context.Context, caller domain.Caller, queueID, tokenID string, target domain.Status, notes string) (tok *domain.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Transition", queueID)
	defer func() { endSpan(span, err) }()

	if !validID(tokenID) {
		return nil, domain.ErrTokenNotFound
	}

	err = s.mutate(ctx, "transition", queueID, func(ctx context.Context, m *mutation) error {
		if err := requireOwner(caller, m.tx.Queue()); err != nil {
			return err
		}
		t, err := m.tx.Token(ctx, tokenID)
		if err != nil {
			return err
		}
		active, err := m.tx.ActiveTokens(ctx)
		if err != nil {
			return err
		}
		if err := s.applyTransition(ctx, m, t, active, target, notes); err != nil {
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// CallNext advances the lowest-positioned waiting token to in_service.
func (s *TokenService) CallNext(ctx context.Context, caller domain.Caller, queueID string) (tok *domain.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.CallNext", queueID)
	defer func() { endSpan(span, err) }()

	err = s.mutate(ctx, "call_next", queueID, func(ctx context.Context, m *mutation) error {
		if err := requireOwner(caller, m.tx.Queue()); err != nil {
			return err
		}
		active, err := m.tx.ActiveTokens(ctx)
		if err != nil {
			return err
		}
		head := domain.HeadWaiting(active)
		if head == nil {
			return domain.ErrNoWaitingTokens
		}
		if err := s.applyTransition(ctx, m, head, active, domain.StatusInService, ""); err != nil {
			return err
		}
		tok = head
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("token called",
		slog.String("queue_id", queueID),
		slog.String("token_id", tok.ID),
		slog.String("display_code", tok.DisplayCode),
	)
	return tok, nil
}

// applyTransition performs the status change on t, a member of active or a terminal token, inside m.
// The token's own row is written before any position batch so a departing token has already left
// the active set when the tokens behind it slide into its slot.
func (s *TokenService) applyTransition(ctx context.Context, m *mutation, t *domain.Token, active []*domain.Token, target domain.Status, notes string) error {
	from := t.Status
	firstCall := t.Timestamps.Called == nil
	if err := t.Transition(target, m.now); err != nil {
		return err
	}
	t.AppendNote(notes)
	if err := m.tx.UpdateToken(ctx, t); err != nil {
		return err
	}

	q := m.tx.Queue()
	var changes []domain.PositionChange
	switch {
	case from == domain.StatusInService && target == domain.StatusWaiting:
		var err error
		changes, err = domain.PlanMove(active, t.ID, len(active))
		if err != nil {
			return err
		}
	case target == domain.StatusServed:
		changes = domain.PlanRemoval(active, t.ID)
		q.RecordServed()
	case target == domain.StatusCancelled, target == domain.StatusNoShow:
		changes = domain.PlanRemoval(active, t.ID)
		q.RecordCancelled()
	}
	if err := m.tx.ApplyPositions(ctx, changes); err != nil {
		return err
	}
	domain.ApplyChanges(active, changes)
	domain.ApplyChanges([]*domain.Token{t}, changes)
	if err := m.commit(ctx); err != nil {
		return err
	}

	remaining := make([]*domain.Token, 0, len(active))
	for _, a := range active {
		if a.ID == t.ID {
			a = t
		}
		if a.Status.Active() {
			remaining = append(remaining, a)
		}
	}
	domain.SortByPosition(remaining)

	summary := domain.Summarize(t)
	withToken := func(ev *domain.Event) { ev.Token = &summary }
	switch target {
	case domain.StatusInService:
		m.emit(domain.EventTokenCalled, withToken)
	case domain.StatusWaiting:
		m.emit(domain.EventTokenReturned, withToken)
	case domain.StatusServed:
		m.emit(domain.EventTokenCompleted, withToken)
	case domain.StatusCancelled, domain.StatusNoShow:
		m.emit(domain.EventTokenCancelled, withToken)
	}
	m.emitPositions(remaining)
	if target.Terminal() {
		m.emitOccupancy()
	}

	metrics.ObserveTransition(string(from), string(target))
	if target == domain.StatusInService && firstCall && t.WaitTime != nil {
		metrics.ObserveWait(*t.WaitTime)
	}
	if target == domain.StatusServed && t.ServiceTime != nil {
		metrics.ObserveService(*t.ServiceTime)
	}
	return nil
}

// Assign records which staff member handles a token. It has no effect on order or status.
func (s *TokenService) Assign(ctx context.Context, caller domain.Caller, queueID, tokenID, staff string) (tok *domain.Token, err error) {
	ctx, span := s.startSpan(ctx, "TokenService.Assign", queueID)
	defer func() { endSpan(span, err) }()

	staff = strings.TrimSpace(staff)
	if staff == "" || utf8.RuneCountInString(staff) > maxStaffLabelLen {
		return nil, domain.Invalid("assignedTo", "must be 1-100 characters")
	}
	if !validID(tokenID) {
		return nil, domain.ErrTokenNotFound
	}

	err = s.mutate(ctx, "assign", queueID, func(ctx context.Context, m *mutation) error {
		if err := requireOwner(caller, m.tx.Queue()); err != nil {
			return err
		}
		t, err := m.tx.Token(ctx, tokenID)
		if err != nil {
			return err
		}
		t.AssignedTo = staff
		t.AppendNote(fmt.Sprintf("[%s] assigned to %s", m.now.UTC().Format(time.RFC3339), staff))
		if err := m.tx.UpdateToken(ctx, t); err != nil {
			return err
		}
		if err := m.commit(ctx); err != nil {
			return err
		}
		summary := domain.Summarize(t)
		m.emit(domain.EventTokenAssigned, func(ev *domain.Event) { ev.Token = &summary })
		tok = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// ActiveTokens lists waiting and in_service tokens in position order.
func (s *TokenService) ActiveTokens(ctx context.Context, caller domain.Caller, queueID string) ([]*domain.Token, error) {
	if _, err := s.ownedQueue(ctx, caller, queueID); err != nil {
		return nil, err
	}
	return s.store.ListTokens(ctx, queueID, domain.TokenFilter{
		Statuses: []domain.Status{domain.StatusWaiting, domain.StatusInService},
	})
}

// History lists every token of a queue, terminal ones included, oldest first.
func (s *TokenService) History(ctx context.Context, caller domain.Caller, queueID string, statuses []domain.Status, limit int) ([]*domain.Token, error) {
	if _, err := s.ownedQueue(ctx, caller, queueID); err != nil {
		return nil, err
	}
	return s.store.ListTokens(ctx, queueID, domain.TokenFilter{Statuses: statuses, Limit: limit})
}

// PublicActive lists the active tokens of an active queue for anonymous viewers.
// The queue and the list come from the same version: a commit landing between the two reads is retried,
// and a queue that keeps moving is read once under its lock.
func (s *TokenService) PublicActive(ctx context.Context, queueID string) (*domain.Queue, []*domain.Token, error) {
	if !validID(queueID) {
		return nil, nil, domain.ErrQueueNotFound
	}
	activeOnly := domain.TokenFilter{Statuses: []domain.Status{domain.StatusWaiting, domain.StatusInService}}
	for attempt := 0; attempt < consistentReadAttempts; attempt++ {
		before, err := s.store.GetQueue(ctx, queueID)
		if err != nil {
			return nil, nil, err
		}
		if !before.Active {
			return nil, nil, domain.ErrQueueNotFound
		}
		active, err := s.store.ListTokens(ctx, queueID, activeOnly)
		if err != nil {
			return nil, nil, err
		}
		after, err := s.store.GetQueue(ctx, queueID)
		if err != nil {
			return nil, nil, err
		}
		if after.Version == before.Version {
			return after, active, nil
		}
	}

	var q *domain.Queue
	var active []*domain.Token
	err := s.store.WithQueueLock(ctx, queueID, func(tx domain.QueueTx) error {
		var err error
		if active, err = tx.ActiveTokens(ctx); err != nil {
			return err
		}
		q = tx.Queue()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !q.Active {
		return nil, nil, domain.ErrQueueNotFound
	}
	return q, active, nil
}

// Status is the customer's own view of a token: where it stands and the estimated wait.
func (s *TokenService) Status(ctx context.Context, tokenID string) (*TokenStatus, error) {
	if !validID(tokenID) {
		return nil, domain.ErrTokenNotFound
	}
	tok, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	q, err := s.store.GetQueue(ctx, tok.QueueID)
	if err != nil {
		return nil, err
	}
	st := &TokenStatus{Token: tok, QueueName: q.Name}
	if tok.Status == domain.StatusWaiting {
		st.PeopleAhead = tok.Position - 1
		st.EstimatedWait = s.EstimateWait(tok.Position)
	}
	return st, nil
}

// SendMessage emails a manager-authored message to a token's customer. Delivery happens in the background.
func (s *TokenService) SendMessage(ctx context.Context, caller domain.Caller, queueID, tokenID, subject, message string) error {
	q, err := s.ownedQueue(ctx, caller, queueID)
	if err != nil {
		return err
	}
	if !validID(tokenID) {
		return domain.ErrTokenNotFound
	}
	tok, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if tok.QueueID != q.ID {
		return domain.ErrTokenNotFound
	}
	if tok.Customer.Email == "" {
		return domain.Invalid("email", "is not on file for this token")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Invalid("message", "must not be empty")
	}
	if strings.TrimSpace(subject) == "" {
		subject = fmt.Sprintf("Update from %s", q.Name)
	}

	s.sendMessage(domain.MessageNotice{
		Email:        tok.Customer.Email,
		CustomerName: tok.Customer.Name,
		QueueName:    q.Name,
		DisplayCode:  tok.DisplayCode,
		Subject:      subject,
		Message:      message,
	})
	return nil
}

// EstimateWait is the flat heuristic: position times the configured minutes per position.
func (s *TokenService) EstimateWait(position int) string {
	minutes := position * s.minutesPerPosition
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func (s *TokenService) sendJoined(n domain.JoinNotice) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyJoined(ctx, n); err != nil {
			s.logger.Warn("join notification failed",
				slog.String("display_code", n.DisplayCode),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *TokenService) sendMessage(n domain.MessageNotice) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyMessage(ctx, n); err != nil {
			s.logger.Warn("message notification failed",
				slog.String("display_code", n.DisplayCode),
				slog.String("error", err.Error()),
			)
		}
	}()
}
