package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"VisualizerPlatform/pkg/health"
)

// NewAdminRouter создает роутер служебного сервера: health, ready, live и metrics
func NewAdminRouter(checker health.HealthChecker, readiness health.ReadinessChecker, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", health.Handler(checker)).Methods(http.MethodGet)
	r.HandleFunc("/ready", health.ReadyHandler(readiness)).Methods(http.MethodGet)
	r.HandleFunc("/live", health.LiveHandler()).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	return r
}
