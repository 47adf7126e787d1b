package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dandantas/cronlease/pkg/middleware"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError writes an error response carrying the request's correlation id
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:         http.StatusText(statusCode),
		Message:       message,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}

// writeStoreError logs a failed store call and answers 500 without the driver's error text
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.Logger(r.Context()).Error("Store request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "Store unavailable")
}

// parseQueryBool parses an optional boolean query parameter.
// Returns nil when the parameter is absent.
func parseQueryBool(r *http.Request, key string) (*bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// pathSegments returns the non-empty path segments after prefix
func pathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
