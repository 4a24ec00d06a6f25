package enhancer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/leca/enhance-studio/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() model.FilePayload {
	return model.FilePayload{
		File: model.SelectedFile{Name: `cat "1".png`, Size: 4, MIMEType: "image/png"},
		Data: []byte("\x89PNG"),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestEnhanceSendsMultipartRequest(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/enhance", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "8", r.FormValue("scale"))
		assert.Equal(t, "400", r.FormValue("tile"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		assert.NoError(t, err)
		assert.Equal(t, "\x89PNG", string(data))
		assert.Equal(t, `cat "1".png`, hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		writeJSON(t, w, http.StatusOK, Response{
			Success:             true,
			Message:             "Image enhanced successfully",
			OriginalDimensions:  "100x100",
			EnhancedDimensions:  "800x800",
			EnhancedImageBase64: "data:image/png;base64,AAAA",
		})
	}))
	defer ts.Close()

	c := New(ts.URL+"/api/", nil)
	resp, err := c.Enhance(context.Background(), testPayload(), model.EnhancementParameters{Scale: 8, Tile: 400})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "100x100", resp.OriginalDimensions)
	assert.Equal(t, "800x800", resp.EnhancedDimensions)
	assert.Equal(t, "data:image/png;base64,AAAA", resp.EnhancedImageBase64)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnhanceServiceReportsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, Response{Success: false, Message: "Enhancement failed", Error: "Uploaded file is empty"})
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).Enhance(context.Background(), testPayload(), model.DefaultParameters())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Uploaded file is empty", se.Message)
}

func TestEnhanceFailureWithoutMessageUsesFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]interface{}{"detail": "bad form"})
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).Enhance(context.Background(), testPayload(), model.DefaultParameters())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, MsgEnhanceFailed, se.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
}

func TestEnhanceUndecodableResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).Enhance(context.Background(), testPayload(), model.DefaultParameters())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, MsgEnhanceFailed, se.Message)
	assert.Error(t, se.Unwrap())
}

func TestEnhanceSuccessWithoutImageIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, Response{Success: true, OriginalDimensions: "1x1", EnhancedDimensions: "4x4"})
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).Enhance(context.Background(), testPayload(), model.DefaultParameters())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, MsgEnhanceFailed, se.Message)
}

func TestEnhanceConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, nil).Enhance(context.Background(), testPayload(), model.DefaultParameters())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, MsgConnectFailed, se.Message)
	assert.Contains(t, se.Error(), "enhancement service")
}

func TestHealthAndInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			writeJSON(t, w, http.StatusOK, Health{Status: "healthy", Message: "Image Enhancement API is running"})
		case "/api/info":
			writeJSON(t, w, http.StatusOK, Info{
				ScaleOptions:     []int{2, 4, 8},
				DefaultTile:      0,
				SupportedFormats: []string{"PNG", "JPG", "JPEG"},
				ModelsAvailable:  map[string]string{"4x": "RealESRGAN_x4plus.pth"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := New(ts.URL+"/api", nil)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 8}, info.ScaleOptions)
	assert.Equal(t, "RealESRGAN_x4plus.pth", info.ModelsAvailable["4x"])
}

func TestHealthUnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := New(ts.URL, nil).Health(context.Background())
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
}
