package domain

import (
	"fmt"
	"sort"
)

// PositionChange is one row of a position batch.
type PositionChange struct {
	TokenID string
	From    int
	To      int
}

// SortByPosition orders tokens ascending by position in place.
func SortByPosition(tokens []*Token) {
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Position < tokens[j].Position })
}

// NextPosition is one past the highest active position, or 1 for an empty list.
func NextPosition(active []*Token) int {
	highest := 0
	for _, t := range active {
		if t.Position > highest {
			highest = t.Position
		}
	}
	return highest + 1
}

// HeadWaiting returns the lowest-positioned waiting token, or nil.
func HeadWaiting(active []*Token) *Token {
	var head *Token
	for _, t := range active {
		if t.Status != StatusWaiting {
			continue
		}
		if head == nil || t.Position < head.Position {
			head = t
		}
	}
	return head
}

// FindToken returns the token with id from list, or nil.
func FindToken(list []*Token, id string) *Token {
	for _, t := range list {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// PlanMove computes the batch that moves tokenID to newPos within the active list.
// Tokens between the old and new slot shift by one toward the vacated slot.
func PlanMove(active []*Token, tokenID string, newPos int) ([]PositionChange, error) {
	moved := FindToken(active, tokenID)
	if moved == nil {
		return nil, ErrTokenNotFound
	}
	if newPos < 1 || newPos > len(active) {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrPositionOutOfRange, len(active))
	}
	old := moved.Position
	if newPos == old {
		return nil, nil
	}

	var changes []PositionChange
	for _, t := range active {
		if t.ID == tokenID {
			continue
		}
		switch {
		case newPos > old && t.Position > old && t.Position <= newPos:
			changes = append(changes, PositionChange{TokenID: t.ID, From: t.Position, To: t.Position - 1})
		case newPos < old && t.Position >= newPos && t.Position < old:
			changes = append(changes, PositionChange{TokenID: t.ID, From: t.Position, To: t.Position + 1})
		}
	}
	changes = append(changes, PositionChange{TokenID: tokenID, From: old, To: newPos})
	return changes, nil
}

// PlanRemoval computes the batch that closes the gap left by tokenID leaving the active set.
// The departing token keeps its position as history and is not part of the batch.
func PlanRemoval(active []*Token, tokenID string) []PositionChange {
	gone := FindToken(active, tokenID)
	if gone == nil {
		return nil
	}
	var changes []PositionChange
	for _, t := range active {
		if t.ID != tokenID && t.Position > gone.Position {
			changes = append(changes, PositionChange{TokenID: t.ID, From: t.Position, To: t.Position - 1})
		}
	}
	return changes
}

// ApplyChanges writes a batch onto in-memory tokens.
func ApplyChanges(tokens []*Token, changes []PositionChange) {
	byID := make(map[string]*Token, len(tokens))
	for _, t := range tokens {
		byID[t.ID] = t
	}
	for _, c := range changes {
		if t, ok := byID[c.TokenID]; ok {
			t.Position = c.To
		}
	}
}

// CheckContiguity verifies that active tokens hold exactly positions 1..N.
func CheckContiguity(active []*Token) error {
	seen := make([]bool, len(active)+1)
	for _, t := range active {
		if !t.Status.Active() {
			return fmt.Errorf("token %s in active list has status %s", t.ID, t.Status)
		}
		if t.Position < 1 || t.Position > len(active) {
			return fmt.Errorf("token %s has position %d outside 1..%d", t.ID, t.Position, len(active))
		}
		if seen[t.Position] {
			return fmt.Errorf("position %d is held by more than one token", t.Position)
		}
		seen[t.Position] = true
	}
	return nil
}
