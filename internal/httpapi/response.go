package httpapi

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with the provided status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OAuthErrorResponse is the RFC 6749 error envelope.
type OAuthErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Error writes an OAuth-style error response.
func Error(w http.ResponseWriter, status int, code string, description string) {
	JSON(w, status, OAuthErrorResponse{Error: code, Description: description})
}
