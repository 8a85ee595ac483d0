package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusWaitingForVet},
		{StatusWaitingForVet, StatusConfirmed},
		{StatusWaitingForVet, StatusInProgress},
		{StatusWaitingForVet, StatusTimeProposed},
		{StatusWaitingForVet, StatusDeclined},
		{StatusTimeProposed, StatusTimeProposed},
		{StatusTimeProposed, StatusConfirmed},
		{StatusTimeProposed, StatusCancelled},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusCompleted},
		{StatusInProgress, StatusCompleted},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	rejected := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusDeclined, StatusConfirmed},
		{StatusCompleted, StatusInProgress},
		{StatusCancelled, StatusWaitingForVet},
		{StatusConfirmed, StatusTimeProposed},
		{StatusInProgress, StatusDeclined},
	}
	for _, tc := range rejected {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusDeclined, StatusCompleted, StatusCancelled} {
		assert.True(t, s.Terminal())
		assert.False(t, s.OwnerCancellable())
		for _, next := range []Status{StatusPending, StatusWaitingForVet, StatusConfirmed, StatusTimeProposed, StatusInProgress} {
			assert.False(t, s.CanTransitionTo(next))
		}
	}
}

func TestSettledPayment(t *testing.T) {
	assert.True(t, PaymentCaptured.Settled())
	assert.True(t, PaymentPaid.Settled())
	assert.False(t, PaymentAuthorized.Settled())
}
