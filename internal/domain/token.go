package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Status is the lifecycle state of a token
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusInService Status = "in_service"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions lists the allowed target states for every non-terminal state.
var transitions = map[Status][]Status{
	StatusWaiting:   {StatusInService, StatusCancelled, StatusNoShow},
	StatusInService: {StatusServed, StatusCancelled, StatusWaiting, StatusNoShow},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWaiting, StatusInService, StatusServed, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", Invalid("status", fmt.Sprintf("%q is not a known status", s))
}

// Active reports whether the token holds a place in the ordered list.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusInService
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusServed || s == StatusCancelled || s == StatusNoShow
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Priority is a display hint; it never reorders the queue on its own.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts the empty string as normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", Invalid("priority", fmt.Sprintf("%q is not one of low, normal, high, urgent", s))
}

// Timestamps are each set once, by the transition that owns them.
type Timestamps struct {
	Created   time.Time
	Called    *time.Time
	Served    *time.Time
	Completed *time.Time
	Cancelled *time.Time
}

// Customer is the contact information supplied on enqueue.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Validate checks the customer name length and trims whitespace.
func (c *Customer) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	n := utf8.RuneCountInString(c.Name)
	if n < MinCustomerNameLen || n > MaxCustomerNameLen {
		return Invalid("customerName", "must be 2-100 characters")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return Invalid("email", "is malformed")
	}
	return nil
}

// Token is a customer's place in a queue
type Token struct {
	ID          string
	QueueID     string
	DisplayCode string // display only, never a lookup key
	Customer    Customer
	Priority    Priority
	Status      Status
	Position    int // meaningful only while active
	Notes       string
	AssignedTo  string
	Timestamps  Timestamps
	WaitTime    *int // minutes from created to called
	ServiceTime *int // minutes from called to completed
}

// Transition moves the token to target, stamping timestamps and derived durations.
// Position bookkeeping is the caller's job.
func (t *Token) Transition(target Status, now time.Time) error {
	if !CanTransition(t.Status, target) {
		return &TransitionError{From: t.Status, To: target}
	}
	switch target {
	case StatusInService:
		if t.Timestamps.Called == nil {
			t.Timestamps.Called = timePtr(now)
		}
		if t.WaitTime == nil {
			t.WaitTime = intPtr(Minutes(t.Timestamps.Created, *t.Timestamps.Called))
		}
	case StatusServed:
		t.Timestamps.Served = timePtr(now)
		t.Timestamps.Completed = timePtr(now)
		if t.ServiceTime == nil && t.Timestamps.Called != nil {
			t.ServiceTime = intPtr(Minutes(*t.Timestamps.Called, now))
		}
	case StatusCancelled, StatusNoShow:
		t.Timestamps.Cancelled = timePtr(now)
	}
	t.Status = target
	return nil
}

// AppendNote adds a line to the free-text notes.
func (t *Token) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if t.Notes == "" {
		t.Notes = note
		return
	}
	t.Notes += "\n" + note
}

// Minutes returns the whole minutes between two instants, rounded to nearest.
func Minutes(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Minutes()))
}

// FormatDisplayCode builds codes like "BAR-007" from a queue name and sequence.
func FormatDisplayCode(queueName string, seq int) string {
	var prefix []rune
	for _, r := range queueName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			prefix = append(prefix, unicode.ToUpper(r))
			if len(prefix) == 3 {
				break
			}
		}
	}
	if len(prefix) == 0 {
		prefix = []rune("Q")
	}
	return fmt.Sprintf("%s-%03d", string(prefix), seq)
}

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(n int) *int { return &n }
