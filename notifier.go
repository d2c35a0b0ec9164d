package limsclient

import (
	"sync"
	"time"
)

const (
	// SessionReasonRefreshRejected is an exported constant or variable used by the LIMS client.
	SessionReasonRefreshRejected = "refresh_rejected"
	// SessionReasonNoRefreshToken is an exported constant or variable used by the LIMS client.
	SessionReasonNoRefreshToken = "no_refresh_token"
	// SessionReasonReplayRejected is an exported constant or variable used by the LIMS client.
	SessionReasonReplayRejected = "replay_rejected"
	// SessionReasonRefreshUnavailable is an exported constant or variable used by the LIMS client.
	SessionReasonRefreshUnavailable = "refresh_unavailable"
	// SessionReasonInternalFailure is an exported constant or variable used by the LIMS client.
	SessionReasonInternalFailure = "internal_failure"
)

// SessionEvent describes why the client concluded the session is over. It is
// handed to the registered [SessionHandler] exactly once per expiry, after
// the credential store has been cleared and pending calls have been resolved.
type SessionEvent struct {
	Reason     string
	Endpoint   string
	RequestID  string
	OccurredAt time.Time
}

// SessionHandler observes terminal session expiry, typically to route the
// operator back to a login screen. The callback runs synchronously on the
// goroutine that detected the expiry; implementations must not call back
// into the client from inside it.
type SessionHandler interface {
	SessionExpired(SessionEvent)
}

// SessionHandlerFunc adapts a plain function to the [SessionHandler]
// interface.
type SessionHandlerFunc func(SessionEvent)

// SessionExpired describes the sessionexpired operation and its observable behavior.
func (f SessionHandlerFunc) SessionExpired(ev SessionEvent) {
	f(ev)
}

// expiryNotifier delivers at most one session-expired notification per
// authenticated era. Three checks run in order: the login gate, the cooldown
// window, and the one-shot latch. A successful login or refresh resets the
// latch and re-arms the cooldown, so an expiry detected right after recovery
// stays quiet.
type expiryNotifier struct {
	handler  SessionHandler
	cooldown time.Duration
	gate     func() bool // reports login activity; nil disables the gate
	now      func() time.Time

	mu            sync.Mutex
	raised        bool
	cooldownUntil time.Time
}

func newExpiryNotifier(cooldown time.Duration, handler SessionHandler, gate func() bool) *expiryNotifier {
	return &expiryNotifier{
		handler:  handler,
		cooldown: cooldown,
		gate:     gate,
		now:      time.Now,
	}
}

// Notify attempts to dispatch ev. It reports whether the handler era was
// raised, and when it was not, the suppression reason. The gate runs before
// the lock is taken because it calls into client state.
func (n *expiryNotifier) Notify(ev SessionEvent) (bool, string) {
	if n == nil {
		return false, "disabled"
	}
	if n.gate != nil && n.gate() {
		return false, "login_gate"
	}

	n.mu.Lock()
	now := n.now()
	if now.Before(n.cooldownUntil) {
		n.mu.Unlock()
		return false, "cooldown"
	}
	if n.raised {
		n.mu.Unlock()
		return false, "already_raised"
	}
	n.raised = true
	n.cooldownUntil = now.Add(n.cooldown)
	handler := n.handler
	n.mu.Unlock()

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	if handler != nil {
		handler.SessionExpired(ev)
	}
	return true, ""
}

// Acknowledge re-arms one-shot delivery without touching the cooldown. An
// application calls this once it has shown its login prompt and wants the
// next expiry reported again.
func (n *expiryNotifier) Acknowledge() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.raised = false
	n.mu.Unlock()
}

// Reset clears the one-shot latch and re-arms the cooldown. Runs on every
// successful login and refresh.
func (n *expiryNotifier) Reset() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.raised = false
	n.cooldownUntil = n.now().Add(n.cooldown)
	n.mu.Unlock()
}
