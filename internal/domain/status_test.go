package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	t.Run("pending and to_confirm are non-terminal", func(t *testing.T) {
		assert.False(t, IsTerminal(StatusPending))
		assert.False(t, IsTerminal(StatusToConfirm))
	})

	t.Run("every other status is terminal", func(t *testing.T) {
		for _, s := range []Status{StatusAuthorized, StatusFailed, StatusCanceled, StatusRefunded, StatusAbandoned} {
			assert.True(t, IsTerminal(s), "expected %s to be terminal", s)
		}
	})
}

func TestDefaultReasonFor(t *testing.T) {
	t.Run("sets a reconciliation reason for terminal outcomes", func(t *testing.T) {
		assert.NotEmpty(t, DefaultReasonFor(StatusAuthorized))
		assert.NotEmpty(t, DefaultReasonFor(StatusFailed))
		assert.NotEmpty(t, DefaultReasonFor(StatusCanceled))
		assert.NotEmpty(t, DefaultReasonFor(StatusRefunded))
	})

	t.Run("leaves non-reconciliation statuses without a default reason", func(t *testing.T) {
		assert.Empty(t, DefaultReasonFor(StatusPending))
		assert.Empty(t, DefaultReasonFor(StatusAbandoned))
	})
}

func TestTimestampFieldFor(t *testing.T) {
	t.Run("maps terminal statuses to their timestamp column", func(t *testing.T) {
		assert.Equal(t, "first_authorized_at", TimestampFieldFor(StatusAuthorized))
		assert.Equal(t, "failed_at", TimestampFieldFor(StatusFailed))
		assert.Equal(t, "canceled_at", TimestampFieldFor(StatusCanceled))
		assert.Equal(t, "refunded_at", TimestampFieldFor(StatusRefunded))
	})

	t.Run("returns empty string for non-terminal statuses and ABANDONED", func(t *testing.T) {
		assert.Empty(t, TimestampFieldFor(StatusPending))
		assert.Empty(t, TimestampFieldFor(StatusToConfirm))
		assert.Empty(t, TimestampFieldFor(StatusAbandoned))
	})
}
