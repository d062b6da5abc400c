// Package prometheus renders veloxauth metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [veloxauth.Auth] and exposes an
// [http.Handler] that renders all counters and histograms. Counter names are
// prefixed veloxauth_*_total; the single histogram is
// veloxauth_session_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate core state.
package prometheus
