// Package otel provides OpenTelemetry metric exporter bindings for veloxauth
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// veloxauth metric and Int64ObservableGauge per histogram bucket. A single
// callback reads [veloxauth.Auth.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate core state.
package otel
