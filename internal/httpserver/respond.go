package httpserver

import (
	"net/http"

	"github.com/harvestpipe/engine/internal/httpx"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	httpx.Respond(w, status, data)
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse = httpx.ErrorResponse

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	httpx.RespondError(w, status, err, message)
}
