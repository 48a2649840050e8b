//go:build unit

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderSignsAndTagsRequests(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"contact.created"}`)
	deliveryID := uuid.New()

	var (
		gotBody    []byte
		gotHeaders http.Header
	)

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	w := Webhook{
		Secret:    "signing-secret",
		VerifySSL: true,
		Headers:   map[string]string{"X-Env": "staging"},
	}

	s := newSender(5 * time.Second)
	outcome := s.send(context.Background(), w, server.URL, deliveryID, "contact.created", body)

	require.Empty(t, outcome.Error)
	assert.Equal(t, http.StatusOK, outcome.ResponseStatus)
	assert.Equal(t, `{"received":true}`, outcome.ResponseBody)
	assert.True(t, outcome.Success())

	assert.Equal(t, body, gotBody)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "contact.created", gotHeaders.Get(HeaderEvent))
	assert.Equal(t, deliveryID.String(), gotHeaders.Get(HeaderDeliveryID))
	assert.Equal(t, "staging", gotHeaders.Get("X-Env"))

	// The receiver can authenticate the payload with the shared secret.
	assert.True(t, VerifySignature(gotBody, gotHeaders.Get(HeaderSignature), "signing-secret"))

	_, err := time.Parse(time.RFC3339, gotHeaders.Get(HeaderTimestamp))
	assert.NoError(t, err)
}

func TestSenderNonSuccessStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusBadGateway)
		_, _ = rw.Write([]byte("upstream down"))
	}))
	defer server.Close()

	s := newSender(5 * time.Second)
	outcome := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: true}, server.URL, uuid.New(), "x", []byte("{}"))

	assert.Empty(t, outcome.Error)
	assert.Equal(t, http.StatusBadGateway, outcome.ResponseStatus)
	assert.Equal(t, "upstream down", outcome.ResponseBody)
	assert.False(t, outcome.Success())
}

func TestSenderTruncatesLargeResponses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte(strings.Repeat("x", MaxStoredResponseBody*5)))
	}))
	defer server.Close()

	s := newSender(5 * time.Second)
	outcome := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: true}, server.URL, uuid.New(), "x", []byte("{}"))

	assert.Len(t, []rune(outcome.ResponseBody), MaxStoredResponseBody)
	assert.True(t, strings.HasSuffix(outcome.ResponseBody, truncatedSuffix))
}

func TestSenderTransportErrorIsCaptured(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := server.URL
	server.Close()

	s := newSender(time.Second)
	outcome := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: true}, target, uuid.New(), "x", []byte("{}"))

	assert.NotEmpty(t, outcome.Error)
	assert.Zero(t, outcome.ResponseStatus)
	assert.False(t, outcome.Success())
}

func TestSenderTimeoutSurfacesAsOutcomeError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	s := newSender(50 * time.Millisecond)
	outcome := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: true}, server.URL, uuid.New(), "x", []byte("{}"))

	assert.NotEmpty(t, outcome.Error)
	assert.False(t, outcome.Success())
	assert.GreaterOrEqual(t, outcome.ResponseTimeMS, int64(50))
}

func TestSenderInsecureClientForUnverifiedWebhooks(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newSender(5 * time.Second)

	// The self-signed certificate fails verification by default.
	verified := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: true}, server.URL, uuid.New(), "x", []byte("{}"))
	assert.NotEmpty(t, verified.Error)

	skipped := s.send(context.Background(), Webhook{Secret: "s", VerifySSL: false}, server.URL, uuid.New(), "x", []byte("{}"))
	assert.Empty(t, skipped.Error)
	assert.Equal(t, http.StatusOK, skipped.ResponseStatus)
}
