package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratuswatch/detect-engine/internal/handlers"
	"github.com/stratuswatch/detect-engine/pkg/middleware"
)

// NewRouter constructs a ServeMux with detection API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health and diagnostics
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.Readiness)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Diagnostics(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Event ingest
	mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.IngestEvents(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Rules API routes
	mux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListRules(w, r)
		} else if r.Method == http.MethodPost {
			h.CreateRule(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Note: These are simplified routes. In production, use a proper router like chi or gorilla/mux
	mux.HandleFunc("/api/v1/rules/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// PUT /api/v1/rules/:id/enable
		if r.Method == http.MethodPut && strings.HasSuffix(path, "/enable") {
			h.SetRuleEnabled(w, r, true)
			// PUT /api/v1/rules/:id/disable
		} else if r.Method == http.MethodPut && strings.HasSuffix(path, "/disable") {
			h.SetRuleEnabled(w, r, false)
			// GET /api/v1/rules/:id
		} else if r.Method == http.MethodGet {
			h.GetRule(w, r)
		} else {
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Findings API routes
	mux.HandleFunc("/api/v1/findings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListFindings(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/findings/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// POST /api/v1/findings/:id/dismiss
		if r.Method == http.MethodPost && strings.HasSuffix(path, "/dismiss") {
			h.DismissFinding(w, r)
			// GET /api/v1/findings/:id
		} else if r.Method == http.MethodGet {
			h.GetFinding(w, r)
		} else {
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Audit trails
	mux.HandleFunc("/api/v1/suppressions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListSuppressions(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/dismissals", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListDismissals(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return middleware.RequestID(mux)
}
