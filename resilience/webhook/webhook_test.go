//go:build unit

package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		org     string
		label   string
		url     string
		secret  string
		events  []string
		wantErr error
	}{
		{"missing org", "", "crm-sync", "https://hooks.example.com", "s", []string{"a"}, ErrOrganizationIDRequired},
		{"missing name", "org-1", "  ", "https://hooks.example.com", "s", []string{"a"}, ErrWebhookNameRequired},
		{"bad scheme", "org-1", "crm-sync", "ftp://hooks.example.com", "s", []string{"a"}, ErrWebhookURLInvalid},
		{"no host", "org-1", "crm-sync", "https://", "s", []string{"a"}, ErrWebhookURLInvalid},
		{"missing secret", "org-1", "crm-sync", "https://hooks.example.com", " ", []string{"a"}, ErrSecretRequired},
		{"no events", "org-1", "crm-sync", "https://hooks.example.com", "s", []string{" ", ""}, ErrEventTypesRequired},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewWebhook(tt.org, tt.label, tt.url, tt.secret, tt.events)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewWebhookDefaults(t *testing.T) {
	t.Parallel()

	w, err := NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm", "signing-secret",
		[]string{"contact.created", " contact.created ", "contact.deleted"})
	require.NoError(t, err)

	assert.True(t, w.Active)
	assert.True(t, w.VerifySSL)
	assert.Equal(t, DefaultMaxAttempts, w.MaxAttempts)
	assert.Equal(t, DefaultRetryBackoff, w.RetryBackoff)
	assert.Equal(t, []string{"contact.created", "contact.deleted"}, w.Events)
	assert.Zero(t, w.TotalDeliveries)
}

func TestNewWebhookOptions(t *testing.T) {
	t.Parallel()

	w, err := NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm", "signing-secret",
		[]string{"contact.created"},
		WithHeaders(map[string]string{"X-Env": "staging"}),
		WithRetryBackoff(time.Second, 10*time.Second, time.Minute, 5*time.Minute),
		WithInsecureSkipVerify(),
	)
	require.NoError(t, err)

	assert.Equal(t, "staging", w.Headers["X-Env"])
	assert.False(t, w.VerifySSL)
	assert.Len(t, w.RetryBackoff, 4)
	// The attempt budget follows the schedule unless overridden.
	assert.Equal(t, 4, w.MaxAttempts)

	w, err = NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm", "signing-secret",
		[]string{"contact.created"},
		WithRetryBackoff(time.Second, time.Minute),
		WithMaxAttempts(5),
	)
	require.NoError(t, err)
	assert.Equal(t, 5, w.MaxAttempts)
}

func TestSubscribesTo(t *testing.T) {
	t.Parallel()

	exact, err := NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm", "signing-secret",
		[]string{"contact.created", "contact.deleted"})
	require.NoError(t, err)

	assert.True(t, exact.SubscribesTo("contact.created"))
	assert.False(t, exact.SubscribesTo("campaign.sent"))

	wildcard, err := NewWebhook("org-1", "firehose", "https://hooks.example.com/all", "signing-secret",
		[]string{EventTypeWildcard})
	require.NoError(t, err)

	assert.True(t, wildcard.SubscribesTo("campaign.sent"))
	assert.True(t, wildcard.SubscribesTo("anything.at.all"))
}

func TestBackoffForIndexesSchedule(t *testing.T) {
	t.Parallel()

	w, err := NewWebhook("org-1", "crm-sync", "https://hooks.example.com/crm", "signing-secret",
		[]string{"contact.created"},
		WithRetryBackoff(time.Second, 10*time.Second, time.Minute))
	require.NoError(t, err)

	assert.Equal(t, time.Second, w.BackoffFor(1))
	assert.Equal(t, 10*time.Second, w.BackoffFor(2))
	assert.Equal(t, time.Minute, w.BackoffFor(3))

	// Past the end of the schedule the last entry repeats.
	assert.Equal(t, time.Minute, w.BackoffFor(4))
	assert.Equal(t, time.Minute, w.BackoffFor(50))

	// Out-of-range attempt counts clamp to the first entry.
	assert.Equal(t, time.Second, w.BackoffFor(0))
	assert.Equal(t, time.Second, w.BackoffFor(-3))
}

func TestBackoffForEmptyScheduleFallsBack(t *testing.T) {
	t.Parallel()

	w := &Webhook{}

	assert.Equal(t, DefaultRetryBackoff[0], w.BackoffFor(1))
	assert.Equal(t, DefaultRetryBackoff[len(DefaultRetryBackoff)-1], w.BackoffFor(10))
}
