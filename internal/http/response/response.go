// Package response writes the JSON envelope from plain net/http handlers
// and middleware that run outside huma.
package response

import (
	"encoding/json/v2"
	"log/slog"
	"net/http"
)

// Version is the envelope version sent as "v".
const Version = 1

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code using json/v2.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, Envelope{V: Version, Success: status < 400, Data: data}, logger)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	write(w, status, Envelope{V: Version, Error: message, Code: code}, logger)
}

// Unauthorized writes a 401 Unauthorized response.
func Unauthorized(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusUnauthorized, "UNAUTHORIZED", message, logger)
}

// TooManyRequests writes a 429 Too Many Requests response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	w.Header().Set("Retry-After", "60")
	Error(w, http.StatusTooManyRequests, "RATE_LIMITED", message, logger)
}

func write(w http.ResponseWriter, status int, env Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	// json/v2 MarshalWrite doesn't add a newline, but that's fine for HTTP responses.
	if err := json.MarshalWrite(w, env); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}
