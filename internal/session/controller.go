package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leca/enhance-studio/internal/database"
	"github.com/leca/enhance-studio/internal/enhancer"
	"github.com/leca/enhance-studio/internal/imageproc"
	"github.com/leca/enhance-studio/internal/model"
	"github.com/leca/enhance-studio/internal/storage"
	"github.com/rs/zerolog/log"
)

// Upload is a candidate file offered by the picker or a drop.
type Upload struct {
	Name     string
	MIMEType string
	Body     io.Reader
}

// Download is a materialized enhanced image.
type Download struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Controller mediates between user actions, the per-session state record,
// session blobs and the enhancement service. Transitions for one session
// are serialized; the outbound request itself runs without holding the
// session lock.
type Controller struct {
	db        database.Database
	store     storage.Storage
	enhancer  enhancer.Enhancer
	maxUpload int64

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Controller.locks once nobody holds or waits on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Terminal transitions of a submission are retried before giving up.
const finishAttempts = 3

var finishBackoff = 25 * time.Millisecond

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMaxUpload sets the largest accepted file in bytes. Zero disables the check.
func WithMaxUpload(n int64) Option {
	return func(c *Controller) { c.maxUpload = n }
}

// NewController wires a Controller.
func NewController(db database.Database, store storage.Storage, enh enhancer.Enhancer, opts ...Option) *Controller {
	c := &Controller{
		db:       db,
		store:    store,
		enhancer: enh,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		locks:    make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lock acquires the session's mutex and returns its release function.
func (c *Controller) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sessionLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// load returns the stored state of id, creating an empty one on first use.
func (c *Controller) load(id string) (model.SessionState, error) {
	st, err := c.db.GetSession(id)
	if err == nil {
		return *st, nil
	}
	if !errors.Is(err, database.ErrSessionNotFound) {
		return model.SessionState{}, err
	}

	fresh := model.NewSessionState(id, c.now())
	if err := c.db.CreateSession(&fresh); err != nil {
		return model.SessionState{}, fmt.Errorf("creating session %s: %w", id, err)
	}
	return fresh, nil
}

// apply reduces a over st and persists the outcome.
func (c *Controller) apply(st model.SessionState, a Action) (model.SessionState, error) {
	next := Reduce(st, a)
	next.UpdatedAt = c.now()
	if err := c.db.SaveSession(&next); err != nil {
		return st, fmt.Errorf("saving session %s: %w", st.ID, err)
	}
	return next, nil
}

// reject records a user-visible failure and returns it.
func (c *Controller) reject(st model.SessionState, e *Error) (model.SessionState, error) {
	next, err := c.apply(st, Rejected{Message: e.Message})
	if err != nil {
		return st, err
	}
	log.Debug().Str("session_id", st.ID).Err(e).Msg("request rejected")
	return next, e
}

// release deletes blobs that are no longer referenced. Failures are logged.
func (c *Controller) release(id string, blobIDs ...string) {
	for _, b := range blobIDs {
		if b == "" {
			continue
		}
		if err := c.store.Delete(id, b); err != nil {
			log.Warn().Err(err).Str("session_id", id).Str("blob_id", b).Msg("failed to release blob")
		}
	}
}

func (c *Controller) readBlob(id, blobID string) ([]byte, error) {
	rc, err := c.store.Retrieve(id, blobID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Snapshot returns the current state of a session.
func (c *Controller) Snapshot(ctx context.Context, id string) (model.SessionState, error) {
	unlock := c.lock(id)
	defer unlock()
	return c.load(id)
}

// AcceptFile validates and installs a new selected file. A rejected file
// leaves everything but the error message untouched.
func (c *Controller) AcceptFile(ctx context.Context, id string, up Upload) (model.SessionState, error) {
	limit := c.maxUpload
	body := up.Body
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return model.SessionState{}, fmt.Errorf("reading upload: %w", err)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	mimeType := imageproc.ResolveMIME(up.MIMEType, head)

	unlock := c.lock(id)
	defer unlock()

	st, err := c.load(id)
	if err != nil {
		return st, err
	}

	if !strings.HasPrefix(mimeType, "image/") {
		return c.reject(st, newError(ErrInvalidFileType, MsgInvalidFileType,
			fmt.Errorf("%s has type %s", up.Name, mimeType)))
	}
	if limit > 0 && int64(len(data)) > limit {
		return c.reject(st, fileTooLarge(limit))
	}

	file := model.SelectedFile{
		Name:     up.Name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		BlobID:   c.newID(),
	}
	if _, err := c.store.Store(id, file.BlobID, bytes.NewReader(data)); err != nil {
		return st, fmt.Errorf("storing selected file: %w", err)
	}

	preview, previewType, err := imageproc.Preview(data, imageproc.PreviewMaxSide)
	if err != nil {
		// The browser may still render what the decoder cannot.
		log.Debug().Err(err).Str("session_id", id).Str("mime", mimeType).Msg("serving original as preview")
		preview, previewType = data, mimeType
	}
	handle := model.PreviewHandle{BlobID: c.newID(), MIMEType: previewType}
	handle.URL = "/preview/" + handle.BlobID
	if _, err := c.store.Store(id, handle.BlobID, bytes.NewReader(preview)); err != nil {
		c.release(id, file.BlobID)
		return st, fmt.Errorf("storing preview: %w", err)
	}

	next, err := c.apply(st, FileAccepted{File: file, Preview: handle})
	if err != nil {
		c.release(id, file.BlobID, handle.BlobID)
		return st, err
	}

	// Superseded blobs go away with the transition that dropped them.
	var stale []string
	if st.File != nil {
		stale = append(stale, st.File.BlobID)
	}
	if st.Preview != nil {
		stale = append(stale, st.Preview.BlobID)
	}
	if st.Result != nil {
		stale = append(stale, st.Result.ImageBlobID)
	}
	c.release(id, stale...)

	log.Info().Str("session_id", id).Str("file", file.Name).Int64("size", file.Size).Str("mime", mimeType).Msg("file accepted")
	return next, nil
}

// SetParameters updates the enhancement parameters.
func (c *Controller) SetParameters(ctx context.Context, id string, params model.EnhancementParameters) (model.SessionState, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.load(id)
	if err != nil {
		return st, err
	}
	return c.apply(st, ParametersChanged{Params: params})
}

// Submit sends the selected file with params to the enhancement service.
// A nil params keeps the stored parameters.
func (c *Controller) Submit(ctx context.Context, id string, params *model.EnhancementParameters) (model.SessionState, error) {
	return c.submit(ctx, id, params, nil)
}

// Resubmit feeds the current result back into the service. A nil params
// keeps the stored parameters.
func (c *Controller) Resubmit(ctx context.Context, id string, params *model.EnhancementParameters) (model.SessionState, error) {
	unlock := c.lock(id)
	st, err := c.load(id)
	if err != nil {
		unlock()
		return st, err
	}

	if st.Result == nil {
		st, err = c.reject(st, newError(ErrNoResultToReprocess, MsgNoResultToReprocess, nil))
		unlock()
		return st, err
	}

	raw, err := c.readBlob(id, st.Result.ImageBlobID)
	if err != nil {
		st, err = c.reject(st, newError(ErrReprocessDecode, MsgReprocessDecode, err))
		unlock()
		return st, err
	}
	payload, err := enhancer.FileFromDataURI(string(raw), fmt.Sprintf("enhanced_%d.png", st.Enhancements))
	if err != nil {
		st, err = c.reject(st, newError(ErrReprocessDecode, MsgReprocessDecode, err))
		unlock()
		return st, err
	}
	unlock()

	return c.submit(ctx, id, params, &payload)
}

func (c *Controller) submit(ctx context.Context, id string, params *model.EnhancementParameters, replacement *model.FilePayload) (model.SessionState, error) {
	unlock := c.lock(id)
	st, err := c.load(id)
	if err != nil {
		unlock()
		return st, err
	}

	if st.Request == model.StateInFlight {
		st, err = c.reject(st, newError(ErrRequestInFlight, MsgRequestInFlight, nil))
		unlock()
		return st, err
	}

	var payload model.FilePayload
	switch {
	case replacement != nil:
		payload = *replacement
	case st.File == nil:
		st, err = c.reject(st, newError(ErrNoFileSelected, MsgNoFileSelected, nil))
		unlock()
		return st, err
	default:
		data, err := c.readBlob(id, st.File.BlobID)
		if err != nil {
			st, err = c.reject(st, newError(ErrNoFileSelected, MsgFileMissing, err))
			unlock()
			return st, err
		}
		payload = model.FilePayload{File: *st.File, Data: data}
	}

	p := st.Params
	if params != nil {
		p = *params
	}
	pendingID := c.newID()
	st, err = c.apply(st, SubmitStarted{Params: p, PendingID: pendingID})
	unlock()
	if err != nil {
		return st, err
	}

	log.Info().Str("session_id", id).Str("file", payload.File.Name).Int("scale", p.Scale).Int("tile", p.Tile).Msg("enhancement submitted")

	// Once issued, the request runs to completion even if the caller goes away.
	resp, callErr := c.enhancer.Enhance(context.WithoutCancel(ctx), payload, p)

	var result model.EnhancementResult
	if callErr == nil {
		result = model.EnhancementResult{
			Success:            true,
			Message:            resp.Message,
			OriginalDimensions: resp.OriginalDimensions,
			EnhancedDimensions: resp.EnhancedDimensions,
			ImageBlobID:        c.newID(),
		}
		if _, err := c.store.Store(id, result.ImageBlobID, strings.NewReader(resp.EnhancedImageBase64)); err != nil {
			callErr = &enhancer.ServiceError{Message: enhancer.MsgEnhanceFailed, Err: fmt.Errorf("storing result: %w", err)}
		}
	}

	unlock = c.lock(id)
	defer unlock()

	var outcome Action = SubmitSucceeded{Result: result}
	var msg string
	if callErr != nil {
		msg = enhancer.MsgEnhanceFailed
		var se *enhancer.ServiceError
		if errors.As(callErr, &se) {
			msg = se.Message
		}
		outcome = SubmitFailed{Message: msg}
	}

	prev, next, superseded, err := c.finish(id, pendingID, outcome)
	if err != nil {
		if callErr == nil {
			c.release(id, result.ImageBlobID)
		}
		// The session must not stay in flight, or every later submit is refused.
		_, failed, _, ferr := c.finish(id, pendingID, SubmitFailed{Message: MsgGeneric})
		if ferr != nil {
			log.Error().Err(ferr).Str("session_id", id).Msg("session left in flight")
			return failed, err
		}
		return failed, newError(ErrEnhancementFailed, MsgGeneric, err)
	}

	if superseded {
		// Cleared (and possibly resubmitted) while this request was out.
		if callErr == nil {
			c.release(id, result.ImageBlobID)
		}
		log.Info().Str("session_id", id).Msg("discarding superseded enhancement response")
		return next, nil
	}

	if callErr != nil {
		log.Warn().Err(callErr).Str("session_id", id).Msg("enhancement failed")
		return next, newError(ErrEnhancementFailed, msg, callErr)
	}

	if prev.Result != nil {
		c.release(id, prev.Result.ImageBlobID)
	}

	log.Info().
		Str("session_id", id).
		Str("original", result.OriginalDimensions).
		Str("enhanced", result.EnhancedDimensions).
		Int("enhancements", next.Enhancements).
		Msg("enhancement succeeded")
	return next, nil
}

// finish applies the terminal transition of submission pendingID, retrying
// failed loads and saves. It returns the state before and after the
// transition. superseded is set when the session has moved on, in which
// case nothing is written and next is the current state.
func (c *Controller) finish(id, pendingID string, a Action) (prev, next model.SessionState, superseded bool, err error) {
	for attempt := 1; ; attempt++ {
		prev, err = c.load(id)
		if err == nil {
			if prev.PendingID != pendingID {
				return prev, prev, true, nil
			}
			next, err = c.apply(prev, a)
			if err == nil {
				return prev, next, false, nil
			}
		}
		if attempt == finishAttempts {
			return prev, prev, false, err
		}
		log.Warn().Err(err).Str("session_id", id).Int("attempt", attempt).Msg("failed to record enhancement outcome")
		time.Sleep(time.Duration(attempt) * finishBackoff)
	}
}

// Download materializes the current result for saving. The filename is
// derived from the original file's base name and the session counter.
func (c *Controller) Download(ctx context.Context, id string) (*Download, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.load(id)
	if err != nil {
		return nil, err
	}
	if st.Result == nil {
		return nil, newError(ErrNoResultToReprocess, MsgNoResultToReprocess, nil)
	}

	raw, err := c.readBlob(id, st.Result.ImageBlobID)
	if err != nil {
		return nil, newError(ErrReprocessDecode, MsgReprocessDecode, err)
	}
	d, err := enhancer.DecodeDataURI(string(raw))
	if err != nil {
		return nil, newError(ErrReprocessDecode, MsgReprocessDecode, err)
	}

	base := "image"
	if st.File != nil && st.File.BaseName() != "" {
		base = st.File.BaseName()
	}
	return &Download{
		Filename: fmt.Sprintf("enhanced_%s_v%d.png", base, st.Enhancements),
		MIMEType: d.MIMEType,
		Data:     d.Data,
	}, nil
}

// Preview opens the current preview blob. Superseded handles are not served.
func (c *Controller) Preview(ctx context.Context, id, blobID string) (io.ReadCloser, string, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.load(id)
	if err != nil {
		return nil, "", err
	}
	if st.Preview == nil || st.Preview.BlobID != blobID {
		return nil, "", storage.ErrNotFound
	}
	rc, err := c.store.Retrieve(id, blobID)
	if err != nil {
		return nil, "", err
	}
	return rc, st.Preview.MIMEType, nil
}

// Clear resets the session to its initial state and drops every blob it holds.
func (c *Controller) Clear(ctx context.Context, id string) (model.SessionState, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.load(id)
	if err != nil {
		return st, err
	}
	next, err := c.apply(st, Cleared{})
	if err != nil {
		return st, err
	}
	if err := c.store.DeleteSession(id); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("failed to release session blobs")
	}
	log.Info().Str("session_id", id).Msg("session cleared")
	return next, nil
}
