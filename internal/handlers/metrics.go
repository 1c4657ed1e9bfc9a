package handlers

import (
	"net/http"

	"github.com/microblog-app/apiserver/internal/metrics"
)

// MetricsHandler serves process-level server statistics.
type MetricsHandler struct {
	reporter *metrics.Reporter
}

// NewMetricsHandler constructs a handler around the injected reporter.
func NewMetricsHandler(reporter *metrics.Reporter) *MetricsHandler {
	return &MetricsHandler{reporter: reporter}
}

// GetMetrics returns a snapshot of the reporter's current state.
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.Snapshot())
}

// TrackRequests records every request into the reporter's rolling
// window before passing it on.
func (h *MetricsHandler) TrackRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.reporter.Track()
		next.ServeHTTP(w, r)
	})
}
