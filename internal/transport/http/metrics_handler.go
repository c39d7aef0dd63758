package http

import (
	"net/http"
)

// MetricsHandler exposes the Prometheus registry fed by the OTel exporter
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler wraps the promhttp handler. A nil handler means metrics
// are disabled and the route answers 404.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		http.NotFound(w, r)
		return
	}
	h.exporter.ServeHTTP(w, r)
}
