// Package influxdb provides the optional time-series export for
// security telemetry. When enabled in configuration, request metrics
// and security events are batched and written asynchronously to an
// InfluxDB v2 instance; when disabled, the rest of the system runs
// unchanged with in-memory telemetry only.
package influxdb
