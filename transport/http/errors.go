package http

import (
	"errors"
	"net/http"

	"github.com/open-harness/loom/internal/apperrors"
)

// statusFor maps a typed apperrors kind to its HTTP status (spec §6.4:
// SessionNotFound -> 404, ValidationError -> 400, everything else
// unhandled -> 500).
func statusFor(err error) int {
	var snf *apperrors.SessionNotFoundError
	if errors.As(err, &snf) {
		return http.StatusNotFound
	}
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError maps err to its spec status and writes it as the response body.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
