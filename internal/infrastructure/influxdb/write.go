package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRequestMetric records one handled HTTP request.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - route: the route classification (e.g. "login", "crypto_handshake")
//   - status: HTTP status code of the response
//   - duration: server-side handling time
func (c *Client) WriteRequestMetric(route string, status int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"http_requests",
		map[string]string{
			"route": route,
		},
		map[string]interface{}{
			"status":      status,
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSecurityEvent records a security-relevant event such as a failed
// login, rejected decryption, or access-control denial.
//
// Parameters:
//   - eventType: event classification (e.g. "auth_failure", "decryption_error")
//   - severity: "info", "warning" or "critical"
//   - detail: short human-readable context, may be empty
func (c *Client) WriteSecurityEvent(eventType, severity, detail string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if detail != "" {
		fields["detail"] = detail
	}

	point := write.NewPoint(
		"security_events",
		map[string]string{
			"type":     eventType,
			"severity": severity,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
