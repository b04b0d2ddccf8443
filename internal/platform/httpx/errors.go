// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// ErrBadRequest marks a body or parameter that could not be decoded.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(err error) (int, string) {
	switch shared.KindOf(err) {
	case shared.ErrNotFound:
		return http.StatusNotFound, "Not Found"
	case shared.ErrInvalidTransition:
		return http.StatusConflict, "Invalid Transition"
	case shared.ErrInvalidState:
		return http.StatusConflict, "Invalid State"
	case shared.ErrAlreadyExists, shared.ErrAlreadyConverted, shared.ErrAlreadyPaid:
		return http.StatusConflict, "Already Processed"
	case shared.ErrCancelled:
		return http.StatusConflict, "Cancelled"
	case shared.ErrMissingRequiredData:
		return http.StatusUnprocessableEntity, "Missing Required Data"
	case shared.ErrValidation:
		return http.StatusBadRequest, "Validation Failed"
	case shared.ErrExternalService:
		return http.StatusBadGateway, "External Service Error"
	}
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, "Bad Request"
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to HTTP responses using RFC7807. Details of
// persistence and unknown failures are not echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, title, "")
		return
	}
	Problem(w, status, title, err.Error())
}
