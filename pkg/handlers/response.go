package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/middleware"
)

// errorResponse is the payload shape returned on every failure.
type errorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps any error onto the structured error payload, using the
// typed status and code when the error carries them.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := apperrors.AsServiceError(err)
	if requestID := middleware.RequestIDFromContext(r.Context()); requestID != "" {
		serviceErr.WithRequestID(requestID)
	}

	writeJSON(w, serviceErr.GetHTTPStatus(), errorResponse{
		Success:   false,
		Error:     serviceErr.Message,
		ErrorCode: serviceErr.Code,
		Details:   serviceErr.Details,
		Timestamp: time.Now().UTC(),
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close() // #nosec G307
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}
