package limsclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dailycafi/lims-sxdch-sub003/credentials"
	"github.com/dailycafi/lims-sxdch-sub003/token"
)

// discardBodyLimit bounds how much of an abandoned response body is drained
// before closing, enough to let the transport reuse the connection.
const discardBodyLimit = 4096

// pendingCall is one suspended caller waiting on an in-flight refresh. req is
// nil for bare waiters (EnsureFresh), which want the cycle outcome but have
// nothing to replay. requestID is the correlation ID the failed attempt went
// out with; the replay reuses it. The result channel is unbuffered: delivery
// happens in a select against the caller's context, so an abandoned caller
// never blocks the drain and never leaks a response body.
type pendingCall struct {
	req       *http.Request
	requestID string
	ctx       context.Context
	result    chan callOutcome
}

type callOutcome struct {
	resp *http.Response
	err  error
}

// refreshDeps carries everything the coordinator calls out to. The client
// binds these at construction; tests bind fakes.
type refreshDeps struct {
	store *credentials.Store
	// replay dispatches a replayed request through the authorizing layer
	// only, never back through 401 interception.
	replay http.RoundTripper
	// grant performs the wire refresh: it exchanges the refresh token for
	// a new pair. An empty new refresh token means the server did not
	// rotate it.
	grant func(ctx context.Context, refreshToken string) (access, refresh string, err error)
	// notify hands a terminal expiry to the notification layer.
	notify func(reason, endpoint, requestID string)
	// reset re-arms the notifier after a committed login or refresh.
	reset    func()
	emit     func(eventType string, success bool, endpoint string, err error, metadata func() map[string]string)
	metrics  *Metrics
	endpoint string // refresh path, for events attributed to the cycle itself
	timeout  time.Duration
}

// refreshCoordinator serializes credential refresh. However many calls fail
// with 401 at overlapping times, at most one wire refresh is outstanding;
// every failing call suspends on the in-flight cycle and is resolved exactly
// once when it settles.
type refreshCoordinator struct {
	deps refreshDeps

	mu         sync.Mutex
	refreshing bool
	queue      []*pendingCall
}

func newRefreshCoordinator(deps refreshDeps) *refreshCoordinator {
	return &refreshCoordinator{deps: deps}
}

// resolve owns a non-bootstrap, non-replayed 401 response. The caller's
// goroutine parks here until the shared refresh settles and its own replay
// (or rejection) comes back.
func (rc *refreshCoordinator) resolve(req *http.Request, resp *http.Response) (*http.Response, error) {
	ctx := req.Context()

	cred, version := rc.deps.store.Snapshot()
	if cred.IsZero() {
		// The call went out with no session at all; the 401 belongs to
		// the caller unchanged.
		return resp, nil
	}

	if req.Body != nil && req.GetBody == nil {
		discardBody(resp)
		return nil, fmt.Errorf("%w: %s %s", ErrReplayNotSupported, req.Method, req.URL.Path)
	}

	// The correlation ID lives on the wire clone the authorizer sent, not on
	// the caller's request. Capture it before the response is discarded so
	// the replay and any expiry event carry the same ID.
	requestID := ""
	if resp.Request != nil {
		requestID = resp.Request.Header.Get(headerRequestID)
	}

	discardBody(resp)

	if cred.Refresh == "" {
		return nil, rc.expireWithoutRefreshToken(ctx, req, requestID, version)
	}

	pc := &pendingCall{req: req, requestID: requestID, ctx: ctx, result: make(chan callOutcome)}
	rc.enqueue(pc, cred.Refresh, version)

	select {
	case out := <-pc.result:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ensureFresh refreshes proactively when the access token is inside the
// expiry leeway. Callers coalesce onto an already running cycle exactly like
// 401-triggered ones.
func (rc *refreshCoordinator) ensureFresh(ctx context.Context, leeway time.Duration) error {
	cred, version := rc.deps.store.Snapshot()
	if cred.IsZero() {
		return ErrUnauthenticated
	}

	claims, err := token.Inspect(cred.Access)
	if err == nil && !claims.ExpiresWithin(leeway) {
		return nil
	}
	// An unparseable access token counts as expiring; the server is the
	// authority and the refresh outcome decides.

	if cred.Refresh == "" {
		return fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	}

	pc := &pendingCall{ctx: ctx, result: make(chan callOutcome)}
	rc.enqueue(pc, cred.Refresh, version)

	select {
	case out := <-pc.result:
		return out.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue parks pc on the current cycle, starting one when idle. version is
// the store version the caller observed; a cycle started from it will only
// commit if no other mutation lands first.
func (rc *refreshCoordinator) enqueue(pc *pendingCall, refreshToken string, version uint64) {
	rc.mu.Lock()
	rc.queue = append(rc.queue, pc)
	started := !rc.refreshing
	rc.refreshing = true
	rc.mu.Unlock()

	if started {
		go rc.run(refreshToken, version)
	} else {
		rc.deps.metrics.Inc(MetricRefreshCoalesced)
	}
}

// run performs one refresh cycle. It executes on its own goroutine with a
// detached, bounded context: the caller that happened to trigger the cycle
// must not be able to cancel a refresh other callers are waiting on.
func (rc *refreshCoordinator) run(refreshToken string, version uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.deps.timeout)
	defer cancel()

	began := time.Now()
	access, refresh, err := rc.deps.grant(ctx, refreshToken)
	rc.deps.metrics.Observe(MetricRefreshLatency, time.Since(began))

	if err == nil {
		// The durable write must not fail just because the wire call
		// consumed most of the cycle budget.
		persistCtx := context.WithoutCancel(ctx)
		committed, serr := rc.deps.store.CompareAndSetTokens(persistCtx, version, access, refresh)
		if serr != nil {
			err = serr
		} else if committed {
			rc.deps.reset()
		}
	}

	rc.settle(err, version)
}

// settle closes the cycle: it takes the queue, flips the state back to idle,
// and resolves every parked caller exactly once. New 401s arriving from here
// on start a fresh cycle.
func (rc *refreshCoordinator) settle(refreshErr error, version uint64) {
	rc.mu.Lock()
	queue := rc.queue
	rc.queue = nil
	rc.refreshing = false
	rc.mu.Unlock()

	pending := func() map[string]string {
		return map[string]string{"pending": strconv.Itoa(len(queue))}
	}

	if refreshErr == nil {
		cred, _ := rc.deps.store.Snapshot()
		if cred.Access != "" {
			rc.deps.metrics.Inc(MetricRefreshSuccess)
			rc.deps.emit(auditEventRefreshSuccess, true, rc.deps.endpoint, nil, pending)
			for _, pc := range queue {
				go rc.finish(pc)
			}
			return
		}

		// A logout landed while the refresh was in flight. The wire
		// call succeeded but its result was discarded; the expiry is
		// user-initiated, so nobody is notified and nothing is cleared
		// again.
		rc.deps.metrics.Inc(MetricRefreshFailure)
		rc.deps.emit(auditEventRefreshFailure, false, rc.deps.endpoint, ErrSessionExpired, func() map[string]string {
			md := pending()
			md["reason"] = "superseded_by_logout"
			return md
		})
		rc.rejectQueue(queue, fmt.Errorf("%w: credentials cleared while refresh was in flight", ErrSessionExpired))
		return
	}

	// Terminal failure: server rejection, transport failure, or a failed
	// durable write all end the session. The clear is version-guarded so a
	// login or logout that raced the cycle keeps its own outcome.
	cleared, clearErr := rc.deps.store.CompareAndClear(context.Background(), version)
	if clearErr != nil {
		rc.deps.metrics.Inc(MetricKeyringFailure)
	}
	if !cleared {
		cred, _ := rc.deps.store.Snapshot()
		if cred.Access != "" {
			// A fresh login raced the failing refresh. Its credential
			// is valid; serve the queue with it instead of rejecting.
			rc.deps.emit(auditEventRefreshFailure, false, rc.deps.endpoint, refreshErr, func() map[string]string {
				md := pending()
				md["reason"] = "superseded_by_login"
				return md
			})
			for _, pc := range queue {
				go rc.finish(pc)
			}
			return
		}
	}

	rc.deps.metrics.Inc(MetricRefreshFailure)
	rc.deps.metrics.Inc(MetricSessionExpired)
	rc.deps.emit(auditEventRefreshFailure, false, rc.deps.endpoint, refreshErr, pending)
	rc.deps.emit(auditEventSessionExpired, false, rc.deps.endpoint, refreshErr, nil)

	rc.rejectQueue(queue, fmt.Errorf("%w: %w", ErrSessionExpired, refreshErr))

	// The handler runs only after every parked caller has its rejection in
	// hand, so an application reacting to the event observes no in-limbo
	// calls.
	if cleared {
		rc.deps.notify(expiryReason(refreshErr), rc.deps.endpoint, "")
	}
}

// expireWithoutRefreshToken ends the session for a 401 that arrived while
// only an access token was stored. There is nothing to retry with, so the
// caller is rejected immediately and the episode is surfaced once.
func (rc *refreshCoordinator) expireWithoutRefreshToken(ctx context.Context, req *http.Request, requestID string, version uint64) error {
	cleared, clearErr := rc.deps.store.CompareAndClear(context.WithoutCancel(ctx), version)
	if clearErr != nil {
		rc.deps.metrics.Inc(MetricKeyringFailure)
	}

	rc.deps.metrics.Inc(MetricSessionExpired)
	rc.deps.emit(auditEventSessionExpired, false, req.URL.Path, ErrNoRefreshToken, nil)
	if cleared {
		rc.deps.notify(SessionReasonNoRefreshToken, req.URL.Path, requestID)
	}

	return fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
}

// finish resolves one parked caller after a successful cycle: bare waiters
// complete immediately, requests are replayed once with the fresh credential.
func (rc *refreshCoordinator) finish(pc *pendingCall) {
	if pc.req == nil {
		rc.deliver(pc, callOutcome{})
		return
	}
	rc.deliver(pc, rc.replayOnce(pc.req, pc.requestID))
}

// replayOnce re-dispatches orig through the authorizing transport with the
// replayed mark set. A second 401 is terminal and never surfaces raw.
func (rc *refreshCoordinator) replayOnce(orig *http.Request, requestID string) callOutcome {
	req := orig.Clone(withReplayed(orig.Context()))
	if requestID != "" && req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, requestID)
	}
	if orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			rc.deps.metrics.Inc(MetricReplayFailure)
			return callOutcome{err: fmt.Errorf("%w: %v", ErrReplayNotSupported, err)}
		}
		req.Body = body
	}

	resp, err := rc.deps.replay.RoundTrip(req)
	if err != nil {
		rc.deps.metrics.Inc(MetricReplayFailure)
		rc.deps.emit(auditEventReplayFailure, false, orig.URL.Path, err, nil)
		return callOutcome{err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		discardBody(resp)
		rc.deps.metrics.Inc(MetricReplayFailure)
		rc.deps.emit(auditEventReplayFailure, false, orig.URL.Path, ErrSessionExpired, nil)
		rc.deps.notify(SessionReasonReplayRejected, orig.URL.Path, requestID)
		return callOutcome{err: fmt.Errorf("%w: replayed call to %s rejected", ErrSessionExpired, orig.URL.Path)}
	}

	rc.deps.metrics.Inc(MetricReplaySuccess)
	rc.deps.emit(auditEventReplaySuccess, true, orig.URL.Path, nil, nil)
	return callOutcome{resp: resp}
}

func (rc *refreshCoordinator) rejectQueue(queue []*pendingCall, err error) {
	for _, pc := range queue {
		rc.deliver(pc, callOutcome{err: err})
	}
}

// deliver hands out to pc's waiting goroutine. When the caller abandoned its
// wait the outcome is dropped on the floor, closing any response body so the
// connection returns to the pool.
func (rc *refreshCoordinator) deliver(pc *pendingCall, out callOutcome) {
	select {
	case pc.result <- out:
	case <-pc.ctx.Done():
		if out.resp != nil {
			discardBody(out.resp)
		}
	}
}

// inflight reports the cycle state for diagnostics.
func (rc *refreshCoordinator) inflight() (bool, int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.refreshing, len(rc.queue)
}

func expiryReason(err error) string {
	switch {
	case errors.Is(err, ErrRefreshRejected):
		return SessionReasonRefreshRejected
	case errors.Is(err, credentials.ErrKeyringUnavailable):
		return SessionReasonInternalFailure
	default:
		return SessionReasonRefreshUnavailable
	}
}

// refreshTransport is the outer transport layer: it dispatches through the
// authorizer and intercepts 401s for coordination. Bootstrap 401s pass
// through untouched and replayed 401s are terminal.
type refreshTransport struct {
	next http.RoundTripper
	rc   *refreshCoordinator
}

// RoundTrip implements [http.RoundTripper].
func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	ctx := req.Context()
	if isBootstrap(ctx) {
		return resp, nil
	}
	if isReplayed(ctx) {
		discardBody(resp)
		return nil, fmt.Errorf("%w: %s already replayed once", ErrSessionExpired, req.URL.Path)
	}

	return t.rc.resolve(req, resp)
}

func discardBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, discardBodyLimit))
	_ = resp.Body.Close()
}
