package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinQueueNameLen    = 2
	MaxQueueNameLen    = 100
	MaxDescriptionLen  = 500
	MinCapacity        = 1
	MaxCapacity        = 1000
	MinCustomerNameLen = 2
	MaxCustomerNameLen = 100
)

// Queue is a service line owned by a single manager
type Queue struct {
	ID               string
	OwnerID          string
	Name             string
	Description      string
	Active           bool
	MaxCapacity      *int // nil means unbounded
	CurrentOccupancy int  // count of waiting + in_service tokens
	TotalServed      int
	TotalCancelled   int // includes no_show
	TokenSeq         int // tokens ever issued, feeds display codes
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// QueuePatch carries the optional fields of an update. A MaxCapacity of 0 removes the cap.
type QueuePatch struct {
	Name        *string
	Description *string
	MaxCapacity *int
	Active      *bool
}

// NewQueue validates input and returns an active queue with zeroed counters.
func NewQueue(id, ownerID, name, description string, maxCapacity *int, now time.Time) (*Queue, error) {
	name = strings.TrimSpace(name)
	if err := validateQueueName(name); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	if maxCapacity != nil {
		if err := validateCapacity(*maxCapacity); err != nil {
			return nil, err
		}
		c := *maxCapacity
		maxCapacity = &c
	}
	return &Queue{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Active:      true,
		MaxCapacity: maxCapacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Apply validates and applies a patch in place. The queue is left untouched on error.
func (q *Queue) Apply(p QueuePatch, now time.Time) error {
	next := *q
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := validateQueueName(name); err != nil {
			return err
		}
		next.Name = name
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
		next.Description = *p.Description
	}
	if p.MaxCapacity != nil {
		if *p.MaxCapacity == 0 {
			next.MaxCapacity = nil
		} else {
			if err := validateCapacity(*p.MaxCapacity); err != nil {
				return err
			}
			if *p.MaxCapacity < q.CurrentOccupancy {
				return ErrCapacityBelowOccupancy
			}
			c := *p.MaxCapacity
			next.MaxCapacity = &c
		}
	}
	if p.Active != nil {
		next.Active = *p.Active
	}
	next.UpdatedAt = now
	*q = next
	return nil
}

// CanAccept reports whether one more active token fits.
func (q *Queue) CanAccept() error {
	if !q.Active {
		return ErrQueueInactive
	}
	if q.MaxCapacity != nil && q.CurrentOccupancy >= *q.MaxCapacity {
		return ErrCapacityExceeded
	}
	return nil
}

// IncrementOccupancy adjusts the active count by delta.
func (q *Queue) IncrementOccupancy(delta int) {
	q.CurrentOccupancy += delta
}

// RecordServed counts a completed token and releases its slot.
func (q *Queue) RecordServed() {
	q.TotalServed++
	q.CurrentOccupancy--
}

// RecordCancelled counts a cancelled or no-show token and releases its slot.
func (q *Queue) RecordCancelled() {
	q.TotalCancelled++
	q.CurrentOccupancy--
}

// NextDisplayCode bumps the token sequence and formats a code for it.
func (q *Queue) NextDisplayCode() string {
	q.TokenSeq++
	return FormatDisplayCode(q.Name, q.TokenSeq)
}

func validateQueueName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinQueueNameLen || n > MaxQueueNameLen {
		return Invalid("name", "must be 2-100 characters")
	}
	return nil
}

func validateDescription(d string) error {
	if utf8.RuneCountInString(d) > MaxDescriptionLen {
		return Invalid("description", "must be at most 500 characters")
	}
	return nil
}

func validateCapacity(c int) error {
	if c < MinCapacity || c > MaxCapacity {
		return Invalid("maxCapacity", "must be between 1 and 1000")
	}
	return nil
}
