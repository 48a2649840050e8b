package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/adstackhq/lib-resilience/resilience/opentelemetry"
)

// Headers set on every outbound delivery, alongside the webhook's own
// operator-configured headers.
const (
	HeaderSignature  = "X-Signature"
	HeaderEvent      = "X-Event"
	HeaderDeliveryID = "X-Delivery-Id"
	HeaderTimestamp  = "X-Timestamp"
)

// DefaultRequestTimeout bounds one outbound delivery attempt.
const DefaultRequestTimeout = 30 * time.Second

// maxReadResponseBytes caps how much of a receiver response is read before
// truncation for storage.
const maxReadResponseBytes = 64 << 10

// sender performs the outbound HTTP POST for deliveries and connectivity
// tests. It keeps two clients so per-webhook VerifySSL is honored without
// rebuilding transports per call.
type sender struct {
	verifying *http.Client
	insecure  *http.Client
}

func newSender(timeout time.Duration) *sender {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	insecureTransport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // per-webhook VerifySSL opt-out
	}

	return &sender{
		verifying: &http.Client{Timeout: timeout},
		insecure:  &http.Client{Timeout: timeout, Transport: insecureTransport},
	}
}

// send POSTs body to targetURL signed with the webhook's secret and returns
// the observed outcome. Transport errors and timeouts surface as the
// outcome's Error; they never panic or propagate.
func (s *sender) send(ctx context.Context, w Webhook, targetURL string, deliveryID uuid.UUID, eventType string, body []byte) AttemptOutcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return AttemptOutcome{Error: sanitizeError(err), ResponseTimeMS: elapsedMS(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignPayload(body, w.Secret))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDeliveryID, deliveryID.String())
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))

	for key, value := range w.Headers {
		req.Header.Set(key, value)
	}

	opentelemetry.InjectHTTPContext(&req.Header, ctx)

	client := s.verifying
	if !w.VerifySSL {
		client = s.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		return AttemptOutcome{Error: sanitizeError(err), ResponseTimeMS: elapsedMS(start)}
	}

	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadResponseBytes))

	return AttemptOutcome{
		ResponseStatus: resp.StatusCode,
		ResponseBody:   TruncateResponseBody(string(raw)),
		ResponseTimeMS: elapsedMS(start),
	}
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
