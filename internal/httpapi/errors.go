package httpapi

import (
	"encoding/json"
	"net/http"

	"edgeforge/internal/hwprofile"
	"edgeforge/internal/manager"
	"edgeforge/internal/orchestrator"
	"edgeforge/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// serviceStatus maps well-known service errors to HTTP status codes.
func serviceStatus(err error) int {
	switch {
	case manager.IsValidation(err),
		hwprofile.IsProfileMissing(err),
		hwprofile.IsParseError(err),
		hwprofile.IsUnsupportedArchitecture(err):
		return http.StatusBadRequest
	case manager.IsBuildNotFound(err):
		return http.StatusNotFound
	case manager.IsBuildConflict(err), orchestrator.IsBuildInProgress(err):
		return http.StatusConflict
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case orchestrator.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := serviceStatus(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, status, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
