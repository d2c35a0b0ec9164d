package internaldefs

import (
	limsclient "github.com/dailycafi/lims-sxdch-sub003"
)

// CounterDef defines a public type used by lims-client APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   limsclient.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by lims-client APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   limsclient.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the LIMS client.
var CounterDefs = []CounterDef{
	{ID: limsclient.MetricLoginSuccess, Name: "limsclient_login_success_total", Help: "Successful login operations."},
	{ID: limsclient.MetricLoginFailure, Name: "limsclient_login_failure_total", Help: "Failed login operations."},
	{ID: limsclient.MetricLogout, Name: "limsclient_logout_total", Help: "Logout operations."},
	{ID: limsclient.MetricRefreshSuccess, Name: "limsclient_refresh_success_total", Help: "Refresh cycles that committed a new credential."},
	{ID: limsclient.MetricRefreshFailure, Name: "limsclient_refresh_failure_total", Help: "Refresh cycles that ended without a usable credential."},
	{ID: limsclient.MetricRefreshCoalesced, Name: "limsclient_refresh_coalesced_total", Help: "Callers that joined an already running refresh cycle."},
	{ID: limsclient.MetricReplaySuccess, Name: "limsclient_replay_success_total", Help: "Replayed calls that completed after a refresh."},
	{ID: limsclient.MetricReplayFailure, Name: "limsclient_replay_failure_total", Help: "Replayed calls that failed after a refresh."},
	{ID: limsclient.MetricSessionExpired, Name: "limsclient_session_expired_total", Help: "Terminal session expiry episodes."},
	{ID: limsclient.MetricNotificationRaised, Name: "limsclient_notification_raised_total", Help: "Session-expired notifications delivered to the handler."},
	{ID: limsclient.MetricNotificationSuppressed, Name: "limsclient_notification_suppressed_total", Help: "Session-expired notifications suppressed by gate, cooldown, or latch."},
	{ID: limsclient.MetricRequestAuthorized, Name: "limsclient_request_authorized_total", Help: "Outgoing requests dispatched with an Authorization header."},
	{ID: limsclient.MetricRequestUnauthenticated, Name: "limsclient_request_unauthenticated_total", Help: "Outgoing requests dispatched without a stored credential."},
	{ID: limsclient.MetricKeyringFailure, Name: "limsclient_keyring_failure_total", Help: "Durable credential storage failures."},
}

// HistogramDefs is an exported constant or variable used by the LIMS client.
var HistogramDefs = []HistogramDef{
	{ID: limsclient.MetricRefreshLatency, Name: "limsclient_refresh_latency_seconds", Help: "Refresh wire-call latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the LIMS client.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the LIMS client.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
