package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/leca/enhance-studio/internal/storage"
	"github.com/rs/zerolog/log"
)

// pageData is the template context for the tool page.
type pageData struct {
	session.View
	MaxUpload string
	ResultURL string
}

// Page handles GET / -- renders the tool from the session state.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.Snapshot(r.Context(), api.GetSessionID(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := pageData{
		View:      session.NewView(st),
		MaxUpload: "50MB",
		ResultURL: fmt.Sprintf("/result?v=%d", st.Enhancements),
	}
	if h.Config.MaxUploadBytes > 0 {
		data.MaxUpload = humanize.IBytes(uint64(h.Config.MaxUploadBytes))
	}

	var buf bytes.Buffer
	if err := h.Templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.Error().Err(err).Msg("failed to render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("failed to write page")
	}
}

// Download handles GET /download -- the current result as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveResult(w, r, "attachment")
}

// Result handles GET /result -- the current result for inline display.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	h.serveResult(w, r, "inline")
}

func (h *Handler) serveResult(w http.ResponseWriter, r *http.Request, disposition string) {
	d, err := h.Sessions.Download(r.Context(), api.GetSessionID(r.Context()))
	if err != nil {
		if session.IsUserError(err) {
			http.Error(w, session.UserMessage(err), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("failed to load result")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", d.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": d.Filename}))
	w.Header().Set("Cache-Control", "private, no-cache")
	setBlobHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(d.Data); err != nil {
		log.Debug().Err(err).Msg("failed to write result")
	}
}

// Preview handles GET /preview/{blob_id}.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	blobID := chi.URLParam(r, "blob_id")

	rc, mimeType, err := h.Sessions.Preview(r.Context(), api.GetSessionID(r.Context()), blobID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "preview not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("blob_id", blobID).Msg("failed to open preview")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	setBlobHeaders(w)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Debug().Err(err).Msg("failed to write preview")
	}
}

// setBlobHeaders keeps user-supplied images (SVG in particular) from running
// script in the page's origin.
func setBlobHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
}
