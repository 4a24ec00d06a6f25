package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale factors accepted by the enhancement service.
var ScaleOptions = []int{2, 4, 8}

const (
	// DefaultScale is the scale factor selected for a fresh session.
	DefaultScale = 4
	// AutoTile asks the service to pick the tile size itself.
	AutoTile = 0
)

// SelectedFile is the user-chosen input image. The payload itself lives in
// blob storage under BlobID.
type SelectedFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
	BlobID   string `json:"blobId"`
}

// BaseName returns the file name up to its first dot.
func (f SelectedFile) BaseName() string {
	base, _, _ := strings.Cut(f.Name, ".")
	return base
}

// FilePayload pairs file metadata with its bytes for an outbound request.
type FilePayload struct {
	File SelectedFile
	Data []byte
}

// PreviewHandle is a locally served reference used to render the selected
// file before it is uploaded.
type PreviewHandle struct {
	BlobID   string `json:"blobId"`
	URL      string `json:"url"`
	MIMEType string `json:"mimeType"`
}

// EnhancementParameters are the user-controlled knobs sent with each request.
type EnhancementParameters struct {
	Scale int `json:"scale"`
	Tile  int `json:"tile"`
}

// DefaultParameters returns scale 4 with automatic tiling.
func DefaultParameters() EnhancementParameters {
	return EnhancementParameters{Scale: DefaultScale, Tile: AutoTile}
}

// ParseParameters coerces raw form values. An unknown scale falls back to
// the default; an unparsable or negative tile becomes automatic.
func ParseParameters(scale, tile string) EnhancementParameters {
	p := DefaultParameters()
	if s, err := strconv.Atoi(strings.TrimSpace(scale)); err == nil && ValidScale(s) {
		p.Scale = s
	}
	if t, err := strconv.Atoi(strings.TrimSpace(tile)); err == nil && t > 0 {
		p.Tile = t
	}
	return p
}

// ValidScale reports whether s is one of ScaleOptions.
func ValidScale(s int) bool {
	for _, v := range ScaleOptions {
		if v == s {
			return true
		}
	}
	return false
}

// Dimensions is an image size as reported by the service ("WxH").
type Dimensions struct {
	Width  int
	Height int
}

// ParseDimensions parses a "WxH" string.
func ParseDimensions(s string) (Dimensions, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Dimensions{}, fmt.Errorf("invalid dimensions %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Dimensions{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Dimensions{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	return Dimensions{Width: width, Height: height}, nil
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// EnhancementResult is a successful service response. The enhanced image
// data URI is kept in blob storage under ImageBlobID.
type EnhancementResult struct {
	Success            bool   `json:"success"`
	Message            string `json:"message,omitempty"`
	OriginalDimensions string `json:"originalDimensions"`
	EnhancedDimensions string `json:"enhancedDimensions"`
	ImageBlobID        string `json:"imageBlobId"`
}

// StatLine renders "original → enhanced".
func (r EnhancementResult) StatLine() string {
	return r.OriginalDimensions + " → " + r.EnhancedDimensions
}

// ScaleLabel is the achieved horizontal scale, e.g. "4x". It is empty when
// either dimension string is malformed.
func (r EnhancementResult) ScaleLabel() string {
	orig, err := ParseDimensions(r.OriginalDimensions)
	if err != nil || orig.Width == 0 {
		return ""
	}
	enh, err := ParseDimensions(r.EnhancedDimensions)
	if err != nil {
		return ""
	}
	ratio := float64(enh.Width) / float64(orig.Width)
	return strconv.FormatFloat(ratio, 'f', -1, 64) + "x"
}
