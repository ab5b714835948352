// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total; access token validation latency is the
// histogram authcore_validate_latency_seconds. The exporter never registers
// anything globally: callers mount [Exporter.Handler] where they want it.
package prometheus
