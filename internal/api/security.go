package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openbiocards/biocard-core/internal/telemetry"
)

// handleSecurityMetrics returns the aggregated security telemetry.
func (s *Server) handleSecurityMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"metrics": s.monitor.Metrics()})
}

// defaultEventWindowHours bounds the events query when no ?hours= is given.
const defaultEventWindowHours = 24

// handleSecurityEvents returns security events from the last N hours,
// newest first. Defaults to 24 hours.
func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	hours := defaultEventWindowHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeBadRequest(w, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	all := s.monitor.Events(0)
	events := make([]telemetry.Event, 0, len(all))
	for _, ev := range all {
		if ev.Timestamp.After(cutoff) {
			events = append(events, ev)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":    events,
		"count":     len(events),
		"timeRange": strconv.Itoa(hours) + " hours",
	})
}

// handleResetMetrics clears all counters and events.
func (s *Server) handleResetMetrics(w http.ResponseWriter, r *http.Request) {
	actor, _ := currentUser(r)
	s.monitor.Reset()
	s.monitor.RecordEvent("metrics_reset", telemetry.SeverityInfo, "metrics reset by "+actor.ID)
	s.logger.Info("security metrics reset", "user_id", actor.ID)

	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}
