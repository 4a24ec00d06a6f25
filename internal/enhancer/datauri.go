package enhancer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/leca/enhance-studio/internal/imageproc"
	"github.com/leca/enhance-studio/internal/model"
)

// ErrInvalidDataURI is returned when a data reference cannot be decoded.
var ErrInvalidDataURI = errors.New("invalid data URI")

// DataURI is a decoded "data:<mime>;base64,<payload>" reference.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// DecodeDataURI parses a base64 data URI. Only base64 payloads are accepted.
func DecodeDataURI(uri string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("%w: payload is not base64", ErrInvalidDataURI)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return &DataURI{MIMEType: strings.ToLower(mediaType), Data: data}, nil
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FileFromDataURI materializes a returned data reference as a new input
// file named name. The payload must be an image the decoder understands.
func FileFromDataURI(uri, name string) (model.FilePayload, error) {
	d, err := DecodeDataURI(uri)
	if err != nil {
		return model.FilePayload{}, err
	}
	if !strings.HasPrefix(d.MIMEType, "image/") {
		return model.FilePayload{}, fmt.Errorf("%w: media type %s is not an image", ErrInvalidDataURI, d.MIMEType)
	}
	if _, _, err := imageproc.Probe(d.Data); err != nil {
		return model.FilePayload{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return model.FilePayload{
		File: model.SelectedFile{
			Name:     name,
			Size:     int64(len(d.Data)),
			MIMEType: d.MIMEType,
		},
		Data: d.Data,
	}, nil
}
