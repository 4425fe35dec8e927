package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the service layer wraps exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnavailable     = errors.New("dependency unavailable")
)

var (
	ErrQueueNotFound          = fmt.Errorf("%w: queue", ErrNotFound)
	ErrTokenNotFound          = fmt.Errorf("%w: token", ErrNotFound)
	ErrNoWaitingTokens        = fmt.Errorf("%w: no waiting tokens", ErrNotFound)
	ErrCapacityExceeded       = fmt.Errorf("%w: queue is at capacity", ErrConflict)
	ErrQueueInactive          = fmt.Errorf("%w: queue is not active", ErrConflict)
	ErrQueueHasActiveTokens   = fmt.Errorf("%w: active tokens exist", ErrConflict)
	ErrCapacityBelowOccupancy = fmt.Errorf("%w: maxCapacity is below current occupancy", ErrConflict)
	ErrTokenNotWaiting        = fmt.Errorf("%w: only waiting tokens can be reordered", ErrConflict)
	ErrPositionOutOfRange     = fmt.Errorf("%w: position out of range", ErrInvalidArgument)
	ErrEmailRequired          = fmt.Errorf("%w: email is required", ErrInvalidArgument)
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition token from %s to %s", ErrConflict, e.From, e.To)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrConflict
}

// Invalid builds an ErrInvalidArgument for a named field.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidArgument, field, reason)
}
