package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/config"
	"github.com/leca/enhance-studio/internal/database"
	"github.com/leca/enhance-studio/internal/enhancer"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/leca/enhance-studio/internal/storage"
	"github.com/leca/enhance-studio/internal/web"
	"github.com/stretchr/testify/require"
)

const testSessionID = "0b5c1f3e-8d2a-4c47-9a61-2f7c9b1e4d10"

// scenarioReply is the canned answer for a 100x100 input at scale 4.
var scenarioReply = map[string]interface{}{
	"success":               true,
	"message":               "Image enhanced successfully",
	"original_dimensions":   "100x100",
	"enhanced_dimensions":   "400x400",
	"enhanced_image_base64": "data:image/png;base64,AAAA",
}

// enhanceRequest is what the fake service saw on POST /enhance.
type enhanceRequest struct {
	Filename    string
	ContentType string
	Scale       string
	Tile        string
}

// fakeService stands in for the enhancement backend.
type fakeService struct {
	mu       sync.Mutex
	requests []enhanceRequest
	reply    map[string]interface{}
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/health":
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "message": "ready"})
	case "/info":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"scale_options":     []int{2, 4, 8},
			"default_tile":      0,
			"supported_formats": []string{"png", "jpg", "jpeg"},
			"models_available":  map[string]string{"4x": "RealESRGAN_x4plus.pth"},
		})
	case "/enhance":
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := enhanceRequest{Scale: r.FormValue("scale"), Tile: r.FormValue("tile")}
		if fh := r.MultipartForm.File["file"]; len(fh) > 0 {
			req.Filename = fh[0].Filename
			req.ContentType = fh[0].Header.Get("Content-Type")
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		reply := f.reply
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(reply)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeService) setReply(reply map[string]interface{}) {
	f.mu.Lock()
	f.reply = reply
	f.mu.Unlock()
}

func (f *fakeService) calls() []enhanceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enhanceRequest(nil), f.requests...)
}

type testEnv struct {
	h       *Handler
	svc     *fakeService
	server  *httptest.Server
	router  http.Handler
	session string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimit(t, 1<<20)
}

func newTestEnvWithLimit(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()

	svc := &fakeService{reply: scenarioReply}
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)

	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tmpl, err := web.Templates()
	require.NoError(t, err)

	cfg := &config.Config{
		ServiceURL:     server.URL,
		MaxUploadBytes: maxUpload,
	}
	client := enhancer.New(server.URL, server.Client())
	h := &Handler{
		Sessions:  session.NewController(db, storage.NewFileSystem(t.TempDir()), client, session.WithMaxUpload(cfg.MaxUploadBytes)),
		Service:   client,
		Config:    cfg,
		Templates: tmpl,
	}
	return &testEnv{h: h, svc: svc, server: server, router: setupRouter(h), session: testSessionID}
}

func setupRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(api.SessionMiddleware(false))
	r.Get("/", h.Page)
	r.Post("/file", h.AcceptFile)
	r.Post("/params", h.SetParameters)
	r.Post("/enhance", h.Enhance)
	r.Post("/reenhance", h.Reenhance)
	r.Post("/clear", h.Clear)
	r.Get("/download", h.Download)
	r.Get("/result", h.Result)
	r.Get("/preview/{blob_id}", h.Preview)
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session/file", h.AcceptFileJSON)
		r.Post("/session/params", h.SetParametersJSON)
		r.Post("/session/enhance", h.EnhanceJSON)
		r.Post("/session/reenhance", h.ReenhanceJSON)
		r.Post("/session/clear", h.ClearJSON)
		r.Get("/parameters", h.Parameters)
		r.Get("/service", h.ServiceStatus)
	})
	return r
}

// do sends req with the test session cookie.
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: e.session})
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) upload(t *testing.T, path, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartFile(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return e.do(req)
}

// page renders GET / and returns the HTML.
func (e *testEnv) page(t *testing.T) string {
	t.Helper()
	w := e.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// sessionEnvelope is the decoded body of the /api/session endpoints.
type sessionEnvelope struct {
	Result   session.View     `json:"result"`
	Success  bool             `json:"success"`
	Errors   []api.APIError   `json:"errors"`
	Messages []api.APIMessage `json:"messages"`
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) sessionEnvelope {
	t.Helper()
	var env sessionEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func multipartFile(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// testPNG generates a valid PNG of the given size.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
