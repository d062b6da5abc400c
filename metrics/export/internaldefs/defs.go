package internaldefs

import (
	veloxauth "github.com/veloxts/veloxauth"
)

// CounterDef binds a core metric ID to its stable exported name.
type CounterDef struct {
	ID   veloxauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   veloxauth.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter in a fixed render order.
var CounterDefs = []CounterDef{
	{ID: veloxauth.MetricPairIssued, Name: "veloxauth_token_pairs_issued_total", Help: "Issued access/refresh token pairs."},
	{ID: veloxauth.MetricSessionResolved, Name: "veloxauth_session_resolved_total", Help: "Successful session resolutions."},
	{ID: veloxauth.MetricSessionRejected, Name: "veloxauth_session_rejected_total", Help: "Bearer credentials that failed closed."},
	{ID: veloxauth.MetricRefreshSuccess, Name: "veloxauth_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: veloxauth.MetricRefreshFailure, Name: "veloxauth_refresh_failure_total", Help: "Rejected refresh exchanges."},
	{ID: veloxauth.MetricLogout, Name: "veloxauth_logout_total", Help: "Logout operations."},
	{ID: veloxauth.MetricRevocation, Name: "veloxauth_revocation_total", Help: "Token identifiers written to the revocation store."},
	{ID: veloxauth.MetricRateLimitAllowed, Name: "veloxauth_rate_limit_allowed_total", Help: "Admitted rate-limited attempts."},
	{ID: veloxauth.MetricRateLimitRejected, Name: "veloxauth_rate_limit_rejected_total", Help: "Rejected rate-limited attempts."},
	{ID: veloxauth.MetricCsrfIssued, Name: "veloxauth_csrf_issued_total", Help: "Issued CSRF tokens."},
	{ID: veloxauth.MetricCsrfRejected, Name: "veloxauth_csrf_rejected_total", Help: "CSRF validation failures."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: veloxauth.MetricSessionLatency, Name: "veloxauth_session_latency_seconds", Help: "Session resolution latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the core
// collector's doubling buckets starting at 100 microseconds.
var HistogramBounds = []string{
	"0.0001",
	"0.0002",
	"0.0004",
	"0.0008",
	"0.0016",
	"0.0032",
	"0.0064",
	"+Inf",
}

// HistogramBoundSuffix are the bound strings in instrument-name-safe form.
var HistogramBoundSuffix = []string{
	"0_0001",
	"0_0002",
	"0_0004",
	"0_0008",
	"0_0016",
	"0_0032",
	"0_0064",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed size.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form both
// Prometheus and OTel expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
