package api

import "net/http"

// Error codes carried in APIError.Code.
const (
	CodeBadRequest         = 1400
	CodeNotFound           = 1404
	CodeConflict           = 1409
	CodeTooLarge           = 1413
	CodeUnprocessable      = 1422
	CodeInternal           = 1500
	CodeBadGateway         = 1502
	CodeServiceUnavailable = 1503
)

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse(CodeBadRequest, msg))
}

// InternalError writes a 500 error response.
func InternalError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse(CodeInternal, msg))
}
