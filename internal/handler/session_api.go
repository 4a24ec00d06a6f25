package handler

import (
	"errors"
	"net/http"

	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/model"
	"github.com/leca/enhance-studio/internal/session"
)

// GetSession handles GET /api/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.Snapshot(r.Context(), api.GetSessionID(r.Context()))
	writeSessionJSON(w, r, session.NewView(st), err)
}

// AcceptFileJSON handles POST /api/session/file.
func (h *Handler) AcceptFileJSON(w http.ResponseWriter, r *http.Request) {
	st, err := h.acceptUpload(w, r)
	if errors.Is(err, errBadUpload) {
		api.BadRequest(w, err.Error())
		return
	}
	writeSessionJSON(w, r, session.NewView(st), err)
}

// SetParametersJSON handles POST /api/session/params.
func (h *Handler) SetParametersJSON(w http.ResponseWriter, r *http.Request) {
	p := formParams(r)
	if p == nil {
		api.BadRequest(w, "missing required field: scale or tile")
		return
	}
	st, err := h.Sessions.SetParameters(r.Context(), api.GetSessionID(r.Context()), *p)
	writeSessionJSON(w, r, session.NewView(st), err)
}

// EnhanceJSON handles POST /api/session/enhance. The call blocks until the
// service answers.
func (h *Handler) EnhanceJSON(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.Submit(r.Context(), api.GetSessionID(r.Context()), formParams(r))
	writeSessionJSON(w, r, session.NewView(st), err)
}

// ReenhanceJSON handles POST /api/session/reenhance.
func (h *Handler) ReenhanceJSON(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.Resubmit(r.Context(), api.GetSessionID(r.Context()), formParams(r))
	writeSessionJSON(w, r, session.NewView(st), err)
}

// ClearJSON handles POST /api/session/clear.
func (h *Handler) ClearJSON(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.Clear(r.Context(), api.GetSessionID(r.Context()))
	writeSessionJSON(w, r, session.NewView(st), err)
}

// Parameters handles GET /api/parameters -- the accepted parameter ranges.
func (h *Handler) Parameters(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(map[string]interface{}{
		"scale_options": model.ScaleOptions,
		"default":       model.DefaultParameters(),
		"max_upload":    h.Config.MaxUploadBytes,
	}))
}
