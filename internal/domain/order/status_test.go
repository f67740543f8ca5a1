package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	valid := []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "status %s should be valid", s)
	}

	assert.False(t, Status("unknown").Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("Pending").Valid(), "statuses are case sensitive")
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusProcessing, false},
		{StatusPending, StatusShipped, false},
		{StatusPending, StatusDelivered, false},
		{StatusPending, StatusRefunded, false},

		{StatusConfirmed, StatusProcessing, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusConfirmed, StatusShipped, false},

		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusConfirmed, false},
		{StatusProcessing, StatusDelivered, false},

		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusShipped, StatusRefunded, false},

		{StatusDelivered, StatusRefunded, true},
		{StatusDelivered, StatusShipped, false},
		{StatusDelivered, StatusCancelled, false},

		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusRefunded, false},

		{StatusRefunded, StatusPending, false},
		{StatusRefunded, StatusDelivered, false},

		{Status("unknown"), StatusPending, false},
		{StatusPending, Status("unknown"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to),
			"transition %s -> %s", tt.from, tt.to)
	}
}

func TestCanTransition_NoSelfLoops(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
	}
	for _, s := range all {
		assert.False(t, CanTransition(s, s), "self-loop allowed for %s", s)
	}
}

func TestCanTransition_TerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded,
	}
	for _, terminal := range []Status{StatusCancelled, StatusRefunded} {
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to),
				"terminal %s should not transition to %s", terminal, to)
		}
	}
}
