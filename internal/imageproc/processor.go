package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/leca/enhance-studio/internal/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PreviewMaxSide bounds the longest edge of generated previews.
const PreviewMaxSide = 768

// DetectFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", "bmp", "tiff", or "" if unknown.
func DetectFormat(data []byte) string {
	// JPEG: starts with FF D8 FF
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg"
	}
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "png"
	}
	// GIF: starts with GIF87a or GIF89a
	if len(data) >= 6 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "gif"
	}
	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "webp"
	}
	// BMP: starts with BM
	if len(data) >= 2 && data[0] == 'B' && data[1] == 'M' {
		return "bmp"
	}
	// TIFF: II*\0 or MM\0*
	if len(data) >= 4 && ((data[0] == 'I' && data[1] == 'I' && data[2] == 0x2A && data[3] == 0x00) ||
		(data[0] == 'M' && data[1] == 'M' && data[2] == 0x00 && data[3] == 0x2A)) {
		return "tiff"
	}
	return ""
}

// IsSVG checks whether the data appears to be SVG content by looking for
// an <svg element near the beginning of the file.
func IsSVG(data []byte) bool {
	limit := 512
	if len(data) < limit {
		limit = len(data)
	}
	return bytes.Contains(data[:limit], []byte("<svg"))
}

// FormatToContentType maps an image format string to its MIME type.
func FormatToContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// ResolveMIME returns the declared MIME type of an upload, or a sniffed one
// when the client sent none or a generic binary type.
func ResolveMIME(declared string, head []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if format := DetectFormat(head); format != "" {
		return FormatToContentType(format)
	}
	if IsSVG(head) {
		return "image/svg+xml"
	}
	return http.DetectContentType(head)
}

// Probe decodes just the header of data and returns its format and size.
func Probe(data []byte) (string, model.Dimensions, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", model.Dimensions{}, fmt.Errorf("decoding image header: %w", err)
	}
	return format, model.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Preview produces a bounded-size rendition of data suitable for showing
// before upload, and its content type. SVG and GIF are passed through
// unchanged; formats the decoder cannot read return an error.
func Preview(data []byte, maxSide int) ([]byte, string, error) {
	if IsSVG(data) {
		return data, "image/svg+xml", nil
	}

	format := DetectFormat(data)
	if format == "gif" {
		return data, "image/gif", nil
	}
	if format == "" {
		return nil, "", fmt.Errorf("unsupported or unrecognized image format")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}

	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	// JPEG stays JPEG; everything else is rendered as PNG to keep alpha.
	outFormat := "png"
	if format == "jpeg" {
		outFormat = "jpeg"
	}
	out, err := encodeImage(img, outFormat)
	if err != nil {
		return nil, "", fmt.Errorf("encoding preview: %w", err)
	}
	return out, FormatToContentType(outFormat), nil
}

// encodeImage encodes an image to the specified format and returns the bytes.
func encodeImage(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}
