// Package telemetry collects in-memory security metrics: request
// counters by route classification, error tallies by code, response
// time aggregates, and a bounded ring of recent security events.
// An optional exporter mirrors the stream to a time-series store.
package telemetry
