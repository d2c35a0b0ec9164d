package limsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/dailycafi/lims-sxdch-sub003/credentials"
	internalaudit "github.com/dailycafi/lims-sxdch-sub003/internal/audit"
)

// maxResponseBody bounds decoded response payloads. LIMS auth responses are
// tiny; anything past this is a misbehaving server.
const maxResponseBody = 1 << 20

// Client defines a public type used by lims-client APIs.
//
// Client instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Client struct {
	config   Config
	baseURL  *url.URL
	store    *credentials.Store
	http     *http.Client
	rc       *refreshCoordinator
	notifier *expiryNotifier
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	loginInFlight atomic.Int32
	closed        atomic.Bool
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closed.Store(true)
	if c.audit != nil {
		c.audit.Close()
	}
}

// Credentials exposes the underlying credential store, for subscribing to
// token changes or inspecting the current session.
func (c *Client) Credentials() *credentials.Store {
	return c.store
}

// HTTPClient returns the managed [http.Client]. Every request dispatched
// through it gets Authorization injection, correlation headers, and
// coordinated 401 refresh-and-replay.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do dispatches req through the managed transport chain.
//
// Do may return an error when input validation, dependency calls, or security checks fail.
// Do does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.http.Do(req)
}

// NewRequest builds a request against the configured base URL. A non-nil
// body is JSON-encoded into a rewindable reader, so the request stays
// replayable after a coordinated refresh.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// EnsureFresh proactively refreshes when the stored access token is within
// the configured expiry leeway. Concurrent callers share one refresh cycle
// with any 401-triggered one.
//
// EnsureFresh may return an error when input validation, dependency calls, or security checks fail.
func (c *Client) EnsureFresh(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.rc.ensureFresh(ctx, c.config.Refresh.ExpiryLeeway)
}

// AcknowledgeSessionExpiry re-arms the one-shot session-expired notification
// after the application has handled the previous one.
func (c *Client) AcknowledgeSessionExpiry() {
	if c == nil {
		return
	}
	c.notifier.Acknowledge()
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Metrics returns the live metrics collector for export integrations.
func (c *Client) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path, _ = url.JoinPath(u.Path, path)
	return u.String()
}

func (c *Client) ensureRequestID(ctx context.Context) context.Context {
	if requestIDFromContext(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, newRequestID())
}

// notifySessionExpired is the coordinator's hand-off into the notifier,
// wrapped with metrics and audit bookkeeping.
func (c *Client) notifySessionExpired(reason, endpoint, requestID string) {
	ev := SessionEvent{
		Reason:     reason,
		Endpoint:   endpoint,
		RequestID:  requestID,
		OccurredAt: time.Now().UTC(),
	}

	raised, suppression := c.notifier.Notify(ev)
	if raised {
		c.metrics.Inc(MetricNotificationRaised)
		c.emitAudit(context.Background(), auditEventNotificationRaised, true, endpoint, "", nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return
	}

	c.metrics.Inc(MetricNotificationSuppressed)
	c.emitAudit(context.Background(), auditEventNotificationSuppressed, false, endpoint, "", nil, func() map[string]string {
		return map[string]string{"reason": reason, "suppressed_by": suppression}
	})
}

// decodeJSON decodes and closes a response body.
func decodeJSON(resp *http.Response, out any) error {
	defer discardBody(resp)
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// newAPIError captures a truncated body snapshot and closes the response.
func newAPIError(resp *http.Response, endpoint string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, apiErrorBodyLimit))
	discardBody(resp)

	requestID := ""
	if resp.Request != nil {
		requestID = resp.Request.Header.Get(headerRequestID)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		RequestID:  requestID,
		Body:       body,
	}
}
