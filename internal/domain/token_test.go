package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestTransitionWaitAndServiceTimes(t *testing.T) {
	tok := &Token{Status: StatusWaiting, Timestamps: Timestamps{Created: t0}}

	require.NoError(t, tok.Transition(StatusInService, t0.Add(7*time.Minute)))
	require.NoError(t, tok.Transition(StatusServed, t0.Add(12*time.Minute)))

	require.NotNil(t, tok.WaitTime)
	require.NotNil(t, tok.ServiceTime)
	assert.Equal(t, 7, *tok.WaitTime)
	assert.Equal(t, 5, *tok.ServiceTime)
	assert.Equal(t, t0.Add(12*time.Minute), *tok.Timestamps.Completed)
	assert.Equal(t, *tok.Timestamps.Served, *tok.Timestamps.Completed)
}

func TestTransitionRoundsToNearestMinute(t *testing.T) {
	tok := &Token{Status: StatusWaiting, Timestamps: Timestamps{Created: t0}}
	require.NoError(t, tok.Transition(StatusInService, t0.Add(2*time.Minute+31*time.Second)))
	assert.Equal(t, 3, *tok.WaitTime)
}

func TestReturnKeepsFirstCallStamp(t *testing.T) {
	tok := &Token{Status: StatusWaiting, Timestamps: Timestamps{Created: t0}}
	require.NoError(t, tok.Transition(StatusInService, t0.Add(4*time.Minute)))
	require.NoError(t, tok.Transition(StatusWaiting, t0.Add(5*time.Minute)))
	require.NoError(t, tok.Transition(StatusInService, t0.Add(9*time.Minute)))

	assert.Equal(t, t0.Add(4*time.Minute), *tok.Timestamps.Called)
	assert.Equal(t, 4, *tok.WaitTime)
}

func TestIllegalTransitionsLeaveTokenUnchanged(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusServed, StatusWaiting},
		{StatusCancelled, StatusInService},
		{StatusNoShow, StatusWaiting},
		{StatusWaiting, StatusServed},
		{StatusWaiting, StatusWaiting},
	}
	for _, tc := range cases {
		tok := &Token{Status: tc.from, Timestamps: Timestamps{Created: t0}}
		before := *tok

		err := tok.Transition(tc.to, t0.Add(time.Minute))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflict)
		var te *TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, tc.from, te.From)
		assert.Equal(t, tc.to, te.To)
		assert.Equal(t, before, *tok)
	}
}

func TestCancelStampsCancelled(t *testing.T) {
	for _, target := range []Status{StatusCancelled, StatusNoShow} {
		tok := &Token{Status: StatusWaiting, Timestamps: Timestamps{Created: t0}}
		require.NoError(t, tok.Transition(target, t0.Add(time.Minute)))
		require.NotNil(t, tok.Timestamps.Cancelled)
		assert.Nil(t, tok.WaitTime)
	}
}

func TestFormatDisplayCode(t *testing.T) {
	assert.Equal(t, "BAR-007", FormatDisplayCode("Barber shop", 7))
	assert.Equal(t, "DMV-120", FormatDisplayCode("d.m.v", 120))
	assert.Equal(t, "Q-001", FormatDisplayCode("!!", 1))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	p, err = ParsePriority("URGENT")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)

	_, err = ParsePriority("vip")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCustomerValidate(t *testing.T) {
	c := Customer{Name: "  Al  ", Email: "al@example.com"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "Al", c.Name)

	bad := Customer{Name: "A"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidArgument)

	badEmail := Customer{Name: "Alice", Email: "nope"}
	assert.ErrorIs(t, badEmail.Validate(), ErrInvalidArgument)
}
