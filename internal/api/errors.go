package api

import (
	"net/http"

	"github.com/tributarydb/tributary/internal/errdefs"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// statusOf maps an error classification to the HTTP status it surfaces as.
func statusOf(kind errdefs.Kind) int {
	switch kind {
	case errdefs.KindNotFound:
		return http.StatusNotFound
	case errdefs.KindBranchExists, errdefs.KindConflict, errdefs.KindMergeConflict:
		return http.StatusConflict
	case errdefs.KindInvalidBranchName, errdefs.KindValidation:
		return http.StatusBadRequest
	case errdefs.KindSchemaMismatch, errdefs.KindSchemaConflict:
		return http.StatusUnprocessableEntity
	case errdefs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErr renders a domain error: the classification becomes the error code
// and the HTTP status, attached details travel in the body. Unclassified
// errors surface as INTERNAL_ERROR without leaking their message.
func WriteErr(w http.ResponseWriter, err error) {
	kind := errdefs.KindOf(err)

	response := ErrorResponse{
		Error:   string(kind),
		Message: err.Error(),
		Details: errdefs.DetailsOf(err),
	}
	if kind == errdefs.KindUnknown || kind == errdefs.KindFatal {
		response.Error = "INTERNAL_ERROR"
		response.Message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(kind))
	_ = WriteJSON(w, response)
}
