package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/model"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/rs/zerolog/log"
)

// errBadUpload marks a request body that is not a usable multipart upload.
var errBadUpload = errors.New("invalid upload")

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart framing and other form fields.
const multipartOverhead = 1 << 20

// acceptUpload streams the "file" part of r into the session. The part is
// handed to the controller unbuffered so the size limit applies while reading.
func (h *Handler) acceptUpload(w http.ResponseWriter, r *http.Request) (model.SessionState, error) {
	if limit := h.Config.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return model.SessionState{}, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return model.SessionState{}, fmt.Errorf("%w: missing required field: file", errBadUpload)
		}
		if err != nil {
			return model.SessionState{}, fmt.Errorf("%w: %v", errBadUpload, err)
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		st, err := h.Sessions.AcceptFile(r.Context(), api.GetSessionID(r.Context()), uploadFromPart(part))
		part.Close()
		return st, err
	}
}

func uploadFromPart(p *multipart.Part) session.Upload {
	return session.Upload{
		Name:     p.FileName(),
		MIMEType: p.Header.Get("Content-Type"),
		Body:     p,
	}
}

// formParams reads scale and tile from the request. It returns nil when the
// request carries neither, so the stored parameters apply.
func formParams(r *http.Request) *model.EnhancementParameters {
	if err := r.ParseForm(); err != nil {
		return nil
	}
	if _, ok := r.Form["scale"]; !ok {
		if _, ok := r.Form["tile"]; !ok {
			return nil
		}
	}
	p := model.ParseParameters(r.Form.Get("scale"), r.Form.Get("tile"))
	return &p
}

// AcceptFile handles POST /file -- multipart upload from the picker or a drop.
func (h *Handler) AcceptFile(w http.ResponseWriter, r *http.Request) {
	_, err := h.acceptUpload(w, r)
	if errors.Is(err, errBadUpload) {
		log.Debug().Err(err).Msg("ignoring malformed upload")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	redirectHome(w, r, err)
}

// SetParameters handles POST /params.
func (h *Handler) SetParameters(w http.ResponseWriter, r *http.Request) {
	p := formParams(r)
	if p == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	_, err := h.Sessions.SetParameters(r.Context(), api.GetSessionID(r.Context()), *p)
	redirectHome(w, r, err)
}

// Enhance handles POST /enhance -- submits the selected file.
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	_, err := h.Sessions.Submit(r.Context(), api.GetSessionID(r.Context()), formParams(r))
	redirectHome(w, r, err)
}

// Reenhance handles POST /reenhance -- feeds the current result back in.
func (h *Handler) Reenhance(w http.ResponseWriter, r *http.Request) {
	_, err := h.Sessions.Resubmit(r.Context(), api.GetSessionID(r.Context()), formParams(r))
	redirectHome(w, r, err)
}

// Clear handles POST /clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	_, err := h.Sessions.Clear(r.Context(), api.GetSessionID(r.Context()))
	redirectHome(w, r, err)
}
