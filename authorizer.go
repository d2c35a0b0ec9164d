package limsclient

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dailycafi/lims-sxdch-sub003/credentials"
)

// headerRequestID is the correlation header stamped onto every outgoing
// request. Replays keep the ID of the original attempt.
const headerRequestID = "X-Request-ID"

func newRequestID() string {
	return uuid.NewString()
}

// requestAuthorizer is the innermost transport layer. It never touches the
// caller's request: it clones, stamps correlation headers, and injects the
// Authorization header from the credential store at dispatch time, so a
// request built before a refresh settled still goes out with the newest
// token.
//
// Bootstrap calls (login, refresh, logout) are exempt from injection; they
// carry their credentials in the body, or attach a header themselves.
type requestAuthorizer struct {
	base    http.RoundTripper
	creds   *credentials.Store
	header  string
	scheme  string
	agent   string
	metrics *Metrics
}

// RoundTrip implements [http.RoundTripper].
func (a *requestAuthorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	base := a.base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req.Clone(req.Context())
	if out.Header.Get(headerRequestID) == "" {
		id := requestIDFromContext(req.Context())
		if id == "" {
			id = newRequestID()
		}
		out.Header.Set(headerRequestID, id)
	}
	if a.agent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", a.agent)
	}

	if isBootstrap(req.Context()) {
		return base.RoundTrip(out)
	}

	if token := a.creds.Access(); token != "" {
		out.Header.Set(a.header, a.scheme+" "+token)
		a.metrics.Inc(MetricRequestAuthorized)
	} else {
		a.metrics.Inc(MetricRequestUnauthenticated)
	}

	return base.RoundTrip(out)
}
