package app

import (
	"github.com/gorilla/mux"

	"analytics-sdk/internal/common/ratelimit"
	"analytics-sdk/internal/handlers"
	"analytics-sdk/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the agent. A nil limiter leaves
// ingestion unlimited.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, limiter *ratelimit.Limiter) {
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware)

	// Health check and read-only state
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/visitor", h.GetVisitor).Methods("GET")
	router.HandleFunc("/consent", h.GetConsent).Methods("GET")

	// Ingestion and host signals
	ingest := router.NewRoute().Subrouter()
	if limiter != nil {
		ingest.Use(ratelimit.HTTPMiddleware(limiter, ratelimit.IPKey))
	}
	ingest.HandleFunc("/track", h.HandleTrack).Methods("POST")
	ingest.HandleFunc("/identity", h.HandleIdentity).Methods("POST")
	ingest.HandleFunc("/visitor/reset", h.ResetVisitor).Methods("POST")
	ingest.HandleFunc("/consent", h.HandleConsent).Methods("POST")
	ingest.HandleFunc("/lifecycle/{signal}", h.HandleLifecycle).Methods("POST")
	ingest.HandleFunc("/battery", h.HandleBattery).Methods("POST")
	ingest.HandleFunc("/connectivity", h.HandleConnectivity).Methods("POST")
}
