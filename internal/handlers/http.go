package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/safereport/safereport/internal/middleware"
)

// HTTPHandler handles HTTP endpoints
type HTTPHandler struct {
	occurrenceHandler *OccurrenceHandler
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(occurrenceHandler *OccurrenceHandler) *HTTPHandler {
	return &HTTPHandler{
		occurrenceHandler: occurrenceHandler,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)

	if h.occurrenceHandler != nil {
		mux.HandleFunc("POST /api/occurrences", h.occurrenceHandler.Create)
		mux.HandleFunc("GET /api/occurrences", h.occurrenceHandler.List)
		mux.HandleFunc("GET /api/occurrences/{uuid}", h.occurrenceHandler.Get)
		mux.HandleFunc("POST /api/occurrences/{uuid}/referrals", h.occurrenceHandler.Refer)
		mux.HandleFunc("POST /api/occurrences/{uuid}/messages", h.occurrenceHandler.PostMessage)
		mux.HandleFunc("POST /api/occurrences/{uuid}/resolve", h.occurrenceHandler.Resolve)
		mux.HandleFunc("POST /api/assignments/{id}/response", h.occurrenceHandler.RecordResponse)
		mux.HandleFunc("PATCH /api/notifications/{uuid}/read", h.occurrenceHandler.MarkNotificationRead)
	}
}

// Handler returns the routed handler wrapped with the middleware stack
func (h *HTTPHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.SetupRoutes(mux)

	var handler http.Handler = mux
	handler = middleware.CORS()(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"status":  "ok",
		"version": "1.0.0",
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}
