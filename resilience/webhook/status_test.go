//go:build unit

package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeliveryStatus(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"PENDING", "DELIVERING", "DELIVERED", "RETRYING", "FAILED"} {
		parsed, err := ParseDeliveryStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, parsed.String())
	}

	_, err := ParseDeliveryStatus("SHIPPED")
	assert.ErrorIs(t, err, ErrStatusInvalid)
}

func TestDeliveryStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := map[DeliveryStatus][]DeliveryStatus{
		StatusPending:  {StatusDelivering},
		StatusRetrying: {StatusDelivering},
		StatusDelivering: {
			StatusDelivered,
			StatusRetrying,
			StatusFailed,
		},
	}

	all := []DeliveryStatus{StatusPending, StatusDelivering, StatusDelivered, StatusRetrying, StatusFailed}

	for _, from := range all {
		for _, to := range all {
			expected := false

			for _, target := range allowed[from] {
				if target == to {
					expected = true
				}
			}

			assert.Equalf(t, expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestDeliveryStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusDelivering.IsTerminal())
	assert.False(t, StatusRetrying.IsTerminal())
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateTransition("PENDING", "DELIVERING"))

	err := ValidateTransition("DELIVERED", "DELIVERING")
	assert.ErrorIs(t, err, ErrTransitionInvalid)

	err = ValidateTransition("SHIPPED", "DELIVERING")
	assert.ErrorIs(t, err, ErrStatusInvalid)
}
