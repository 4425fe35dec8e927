package domain

import "time"

// EventType names a domain event on the wire
type EventType string

const (
	EventTokenEnqueued         EventType = "token.enqueued"
	EventTokenPositionsChanged EventType = "token.positions_changed"
	EventTokenCalled           EventType = "token.called"
	EventTokenCompleted        EventType = "token.completed"
	EventTokenCancelled        EventType = "token.cancelled"
	EventTokenReturned         EventType = "token.returned"
	EventTokenAssigned         EventType = "token.assigned"
	EventQueueOccupancyChanged EventType = "queue.occupancy_changed"
)

// TokenSummary is the public view of a token. Contact details are never included.
type TokenSummary struct {
	ID           string   `json:"id"`
	DisplayCode  string   `json:"displayCode"`
	CustomerName string   `json:"customerName"`
	Priority     Priority `json:"priority"`
	Status       Status   `json:"status"`
	Position     int      `json:"position"`
	AssignedTo   string   `json:"assignedTo,omitempty"`
	WaitTime     *int     `json:"waitTime,omitempty"`
	ServiceTime  *int     `json:"serviceTime,omitempty"`
}

// Occupancy is the counter block of a queue.
type Occupancy struct {
	Current        int  `json:"current"`
	Max            *int `json:"max,omitempty"`
	TotalServed    int  `json:"totalServed"`
	TotalCancelled int  `json:"totalCancelled"`
}

// Event is published after a mutation commits. Seq is the queue version the mutation produced,
// so subscribers can order and de-duplicate per queue.
type Event struct {
	Type      EventType      `json:"type"`
	QueueID   string         `json:"queueId"`
	Seq       int64          `json:"seq"`
	At        time.Time      `json:"at"`
	Token     *TokenSummary  `json:"token,omitempty"`
	Active    []TokenSummary `json:"active,omitempty"`
	Occupancy *Occupancy     `json:"occupancy,omitempty"`
}

// Publisher fans events out to subscribers. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// Summarize strips a token down to its public fields.
func Summarize(t *Token) TokenSummary {
	return TokenSummary{
		ID:           t.ID,
		DisplayCode:  t.DisplayCode,
		CustomerName: t.Customer.Name,
		Priority:     t.Priority,
		Status:       t.Status,
		Position:     t.Position,
		AssignedTo:   t.AssignedTo,
		WaitTime:     t.WaitTime,
		ServiceTime:  t.ServiceTime,
	}
}

// SummarizeAll maps Summarize over a list.
func SummarizeAll(tokens []*Token) []TokenSummary {
	out := make([]TokenSummary, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, Summarize(t))
	}
	return out
}

// OccupancyOf reads the counter block of q.
func OccupancyOf(q *Queue) *Occupancy {
	return &Occupancy{
		Current:        q.CurrentOccupancy,
		Max:            q.MaxCapacity,
		TotalServed:    q.TotalServed,
		TotalCancelled: q.TotalCancelled,
	}
}
