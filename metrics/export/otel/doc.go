// Package otel publishes goSession client metrics as OpenTelemetry
// observable instruments.
//
// [New] registers one Int64ObservableCounter per client counter, the
// refresh-latency histogram as a cumulative bucket gauge with an "le"
// attribute plus a sample counter, a gosession_authenticated gauge (0 or 1),
// and the audit drop counter. A single callback reads the client on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
