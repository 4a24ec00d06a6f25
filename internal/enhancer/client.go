package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/leca/enhance-studio/internal/model"
	"github.com/rs/zerolog/log"
)

// User-visible fallbacks when the service gives nothing better.
const (
	MsgConnectFailed = "Failed to connect to server. Make sure the backend is running."
	MsgEnhanceFailed = "Enhancement failed"
)

// maxResponseBytes caps how much of a service response is read.
const maxResponseBytes = 512 << 20

// ServiceError describes a failed enhancement call. Message is safe to show
// to the user.
type ServiceError struct {
	Message string
	Status  int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("enhancement service: %s: %v", e.Message, e.Err)
	}
	return "enhancement service: " + e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Response is the JSON body returned by POST /enhance.
type Response struct {
	Success             bool   `json:"success"`
	Message             string `json:"message,omitempty"`
	Error               string `json:"error,omitempty"`
	OriginalDimensions  string `json:"original_dimensions,omitempty"`
	EnhancedDimensions  string `json:"enhanced_dimensions,omitempty"`
	EnhancedImageBase64 string `json:"enhanced_image_base64,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Info is the body of GET /info.
type Info struct {
	ScaleOptions     []int             `json:"scale_options"`
	DefaultTile      int               `json:"default_tile"`
	SupportedFormats []string          `json:"supported_formats"`
	ModelsAvailable  map[string]string `json:"models_available"`
}

// Enhancer is the outbound contract the session controller depends on.
type Enhancer interface {
	Enhance(ctx context.Context, file model.FilePayload, params model.EnhancementParameters) (*Response, error)
}

// Compile-time check that Client implements Enhancer.
var _ Enhancer = (*Client)(nil)

// Client talks to the enhancement service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the service rooted at baseURL (e.g.
// "http://localhost:8013/api"). A nil hc uses a client without a timeout:
// enhancement calls run until the service answers or the connection fails.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Enhance issues exactly one multipart POST to /enhance. It never retries.
func (c *Client) Enhance(ctx context.Context, file model.FilePayload, params model.EnhancementParameters) (*Response, error) {
	body, contentType, err := buildEnhanceBody(file, params)
	if err != nil {
		return nil, &ServiceError{Message: MsgEnhanceFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/enhance", body)
	if err != nil {
		return nil, &ServiceError{Message: MsgConnectFailed, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	log.Debug().
		Str("service_request_id", reqID).
		Str("file", file.File.Name).
		Int64("size", file.File.Size).
		Int("scale", params.Scale).
		Int("tile", params.Tile).
		Msg("enhance request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: MsgConnectFailed, Err: err}
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, &ServiceError{Message: MsgEnhanceFailed, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = MsgEnhanceFailed
		}
		return nil, &ServiceError{Message: msg, Status: resp.StatusCode}
	}
	if out.EnhancedImageBase64 == "" {
		return nil, &ServiceError{Message: MsgEnhanceFailed, Status: resp.StatusCode, Err: errors.New("response carries no image")}
	}

	log.Debug().
		Str("service_request_id", reqID).
		Str("original", out.OriginalDimensions).
		Str("enhanced", out.EnhancedDimensions).
		Msg("enhance response")

	return &out, nil
}

func buildEnhanceBody(file model.FilePayload, params model.EnhancementParameters) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.File.Name)))
	mimeType := file.File.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}
	if err := w.WriteField("scale", strconv.Itoa(params.Scale)); err != nil {
		return nil, "", fmt.Errorf("writing scale: %w", err)
	}
	if err := w.WriteField("tile", strconv.Itoa(params.Tile)); err != nil {
		return nil, "", fmt.Errorf("writing tile: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Info queries GET /info.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.getJSON(ctx, "/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ServiceError{Message: MsgConnectFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ServiceError{Message: fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, path), Status: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(target); err != nil {
		return &ServiceError{Message: "invalid response from " + path, Status: resp.StatusCode, Err: err}
	}
	return nil
}
