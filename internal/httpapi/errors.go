package httpapi

import (
	"encoding/json"
	"net/http"

	"modelmgr/internal/background"
	"modelmgr/internal/catalog"
	"modelmgr/internal/coordinator"
	"modelmgr/internal/download"
	"modelmgr/internal/runtime"
	"modelmgr/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case download.IsConflict(err):
		return http.StatusConflict
	case catalog.IsModelNotFound(err), background.IsDownloadNotFound(err):
		return http.StatusNotFound
	case background.IsUnavailable(err), runtime.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case coordinator.IsBlocked(err):
		return http.StatusUnprocessableEntity
	case download.IsTransportFailure(err):
		return http.StatusBadGateway
	case background.IsNotCompleted(err):
		return http.StatusConflict
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
