package telemetry

import (
	"sync"
	"time"

	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
)

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const defaultEventCapacity = 256

// Event is one recorded security-relevant occurrence.
type Event struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	ErrorResponses    int64            `json:"error_responses"`
	BlockedRequests   int64            `json:"blocked_requests"`
	EncryptedRequests int64            `json:"encrypted_requests"`
	RequestsByRoute   map[string]int64 `json:"requests_by_route"`
	ErrorsByCode      map[string]int64 `json:"errors_by_code"`
	AvgResponseMs     float64          `json:"avg_response_ms"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	StartedAt         time.Time        `json:"started_at"`
}

// Exporter mirrors telemetry to an external store. Implementations must
// not block; the in-memory monitor is the source of truth.
type Exporter interface {
	WriteRequestMetric(route string, status int, duration time.Duration)
	WriteSecurityEvent(eventType, severity, detail string)
}

// Monitor aggregates security telemetry. All methods are safe for
// concurrent use.
type Monitor struct {
	log      *logging.Logger
	exporter Exporter // nil when export is disabled

	mu             sync.Mutex
	startedAt      time.Time
	totalRequests  int64
	errorCount     int64
	blockedCount   int64
	encryptedCount int64
	byRoute        map[string]int64
	byCode         map[string]int64
	totalDuration  time.Duration

	events   []Event
	eventPos int
	eventCap int
}

// NewMonitor creates a Monitor. capacity bounds the event ring; zero
// falls back to the default. exporter may be nil.
func NewMonitor(capacity int, log *logging.Logger, exporter Exporter) *Monitor {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &Monitor{
		log:       log,
		exporter:  exporter,
		startedAt: time.Now(),
		byRoute:   make(map[string]int64),
		byCode:    make(map[string]int64),
		events:    make([]Event, 0, capacity),
		eventCap:  capacity,
	}
}

// RecordRequest tallies one handled HTTP request.
func (m *Monitor) RecordRequest(route string, status int, duration time.Duration) {
	m.mu.Lock()
	m.totalRequests++
	m.byRoute[route]++
	if status >= 400 {
		m.errorCount++
	}
	m.totalDuration += duration
	m.mu.Unlock()

	if m.exporter != nil {
		m.exporter.WriteRequestMetric(route, status, duration)
	}
}

// RecordError tallies one error response by its stable error code.
func (m *Monitor) RecordError(code string) {
	m.mu.Lock()
	m.byCode[code]++
	m.mu.Unlock()
}

// RecordBlocked tallies one request denied by the access gate.
func (m *Monitor) RecordBlocked() {
	m.mu.Lock()
	m.blockedCount++
	m.mu.Unlock()
}

// RecordEncrypted tallies one request handled on the encrypted surface.
func (m *Monitor) RecordEncrypted() {
	m.mu.Lock()
	m.encryptedCount++
	m.mu.Unlock()
}

// RecordEvent appends a security event to the ring, logs it at a level
// matching its severity, and mirrors it to the exporter.
func (m *Monitor) RecordEvent(eventType, severity, detail string) {
	event := Event{
		Type:      eventType,
		Severity:  severity,
		Detail:    detail,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	if len(m.events) < m.eventCap {
		m.events = append(m.events, event)
	} else {
		m.events[m.eventPos] = event
	}
	m.eventPos = (m.eventPos + 1) % m.eventCap
	m.mu.Unlock()

	switch severity {
	case SeverityCritical:
		m.log.Error("security event", "type", eventType, "detail", detail)
	case SeverityWarning:
		m.log.Warn("security event", "type", eventType, "detail", detail)
	default:
		m.log.Info("security event", "type", eventType, "detail", detail)
	}

	if m.exporter != nil {
		m.exporter.WriteSecurityEvent(eventType, severity, detail)
	}
}

// Metrics returns a copy of the current aggregates.
func (m *Monitor) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byRoute := make(map[string]int64, len(m.byRoute))
	for k, v := range m.byRoute {
		byRoute[k] = v
	}
	byCode := make(map[string]int64, len(m.byCode))
	for k, v := range m.byCode {
		byCode[k] = v
	}

	var avg float64
	if m.totalRequests > 0 {
		avg = float64(m.totalDuration) / float64(m.totalRequests) / float64(time.Millisecond)
	}

	return Snapshot{
		TotalRequests:     m.totalRequests,
		ErrorResponses:    m.errorCount,
		BlockedRequests:   m.blockedCount,
		EncryptedRequests: m.encryptedCount,
		RequestsByRoute:   byRoute,
		ErrorsByCode:      byCode,
		AvgResponseMs:     avg,
		UptimeSeconds:     int64(time.Since(m.startedAt).Seconds()),
		StartedAt:         m.startedAt,
	}
}

// Events returns up to limit recent events, newest first. A zero or
// negative limit returns everything retained.
func (m *Monitor) Events(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reconstruct chronological order from the ring.
	ordered := make([]Event, 0, len(m.events))
	if len(m.events) < m.eventCap {
		ordered = append(ordered, m.events...)
	} else {
		ordered = append(ordered, m.events[m.eventPos:]...)
		ordered = append(ordered, m.events[:m.eventPos]...)
	}

	// Newest first.
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

// Reset clears all counters and events. Uptime restarts from now.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startedAt = time.Now()
	m.totalRequests = 0
	m.errorCount = 0
	m.blockedCount = 0
	m.encryptedCount = 0
	m.byRoute = make(map[string]int64)
	m.byCode = make(map[string]int64)
	m.totalDuration = 0
	m.events = m.events[:0]
	m.eventPos = 0
}
