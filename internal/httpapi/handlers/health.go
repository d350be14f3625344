package handlers

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// Health responds with service status and uptime.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "identity-service",
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
	})
}
