// Package prometheus renders goSession client metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads a [goSession.Client] and exposes an
// [http.Handler]. Counter names are prefixed gosession_*_total; the single
// histogram is gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
