// Package limsclient provides the session and token coordination layer for
// authenticated calls into a LIMS server: bearer-token injection on every
// outgoing request, single-flight refresh when concurrent calls hit an
// expired session, exactly-once replay of the calls that failed, and
// throttled one-shot session-expired notification.
//
// The package is designed for concurrent callers: Client methods and the
// managed [http.Client] are safe to use from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// limsclient is the public surface. It exposes [Client], [Builder], [Config],
// and value types (MetricsSnapshot, SessionEvent, ClientReport). Credential
// storage lives in the credentials package, structural token inspection in
// the token package, and audit dispatch under internal/.
//
// # What this package must NOT do
//
//   - Issue a second refresh call while one is outstanding, no matter how
//     many requests fail concurrently.
//   - Leave a pending call unresolved once the refresh that held it settles.
//   - Surface a raw 401 for a call that has already been replayed once; that
//     rejection is always a tagged session-expired error.
//   - Log or export token values anywhere (audit events, metrics, reports).
//
// # Concurrency contract
//
// The refresh wire call is the only operation that blocks for an unbounded,
// network-bound duration; every other coordination step is a short critical
// section. Callers parked on an in-flight refresh are released exactly once,
// in enqueue order, and an abandoned caller never blocks the drain.
package limsclient
