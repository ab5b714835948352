// Package otel exposes authcore metrics as OpenTelemetry observable
// instruments.
//
// [New] registers one Int64ObservableCounter per counter, one
// Int64ObservableGauge per cumulative latency bucket plus a count gauge, and
// a single callback that reads the engine snapshot on each collection.
//
// The caller owns the MeterProvider.
package otel
