// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/ledgerline/deposit-core/internal/shared"
)

// RespondError maps classified domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case shared.KindBadRequest:
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
