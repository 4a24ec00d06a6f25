package handler

import (
	"errors"
	"net/http"

	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/rs/zerolog/log"
)

// statusFor maps a controller error to an HTTP status and envelope code.
func statusFor(err error) (int, int) {
	switch {
	case errors.Is(err, session.ErrRequestInFlight):
		return http.StatusConflict, api.CodeConflict
	case errors.Is(err, session.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, api.CodeTooLarge
	case errors.Is(err, session.ErrEnhancementFailed):
		return http.StatusBadGateway, api.CodeBadGateway
	case session.IsUserError(err):
		return http.StatusUnprocessableEntity, api.CodeUnprocessable
	default:
		return http.StatusInternalServerError, api.CodeInternal
	}
}

// writeSessionJSON writes view, or the user-level failure err alongside it.
func writeSessionJSON(w http.ResponseWriter, r *http.Request, view session.View, err error) {
	if err == nil {
		api.WriteJSON(w, http.StatusOK, api.SuccessResponse(view))
		return
	}
	if !session.IsUserError(err) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("session operation failed")
		api.InternalError(w, session.MsgGeneric)
		return
	}
	status, code := statusFor(err)
	api.WriteJSON(w, status, api.FailedResponse(view, code, session.UserMessage(err)))
}

// redirectHome finishes a form action. User-level failures are already in
// the session state and show up on the next render.
func redirectHome(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !session.IsUserError(err) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("session operation failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
