package api

import (
	"net/http"
	"time"

	"github.com/rendis/flowcanvas/internal/scheduler"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	body := map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"elements_count": n,
	}
	if d, ok := s.deps.Hub.(interface{ Dropped() uint64 }); ok {
		body["events_dropped"] = d.Dropped()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := scheduler.CurrentSyncStatus(r.Context(), s.deps.Store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"elementCount": status.ElementCount,
		"lastSync":     status.LastSync,
		"timestamp":    status.Timestamp,
	})
}
