// Package prometheus provides Prometheus collectors for lims-client metrics.
//
// [NewPrometheusExporter] accepts a [limsclient.Client] and exposes an [http.Handler]
// that renders all client counters and histograms in Prometheus text exposition format.
// Counter names are prefixed limsclient_*_total; the single histogram is
// limsclient_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate client state.
package prometheus
