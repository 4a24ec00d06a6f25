package enhancer

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestDecodeDataURI(t *testing.T) {
	d, err := DecodeDataURI("data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIMEType)
	assert.Equal(t, []byte{0, 0, 0}, d.Data)

	d, err = DecodeDataURI("data:image/PNG;charset=binary;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIMEType)

	d, err = DecodeDataURI("data:;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", d.MIMEType)
	assert.Equal(t, "hi", string(d.Data))
}

func TestDecodeDataURIFailures(t *testing.T) {
	for _, uri := range []string{
		"",
		"http://example.com/a.png",
		"data:image/png;base64",
		"data:image/png,plain-payload",
		"data:image/png;base64,!!!not-base64!!!",
	} {
		_, err := DecodeDataURI(uri)
		assert.True(t, errors.Is(err, ErrInvalidDataURI), "uri %q", uri)
	}
}

func TestEncodeDataURIRoundTrip(t *testing.T) {
	raw := pngBytes(t, 3, 3)
	d, err := DecodeDataURI(EncodeDataURI("image/png", raw))
	require.NoError(t, err)
	assert.Equal(t, raw, d.Data)
}

func TestFileFromDataURI(t *testing.T) {
	raw := pngBytes(t, 5, 4)

	p, err := FileFromDataURI(EncodeDataURI("image/png", raw), "enhanced_1.png")
	require.NoError(t, err)
	assert.Equal(t, "enhanced_1.png", p.File.Name)
	assert.Equal(t, "image/png", p.File.MIMEType)
	assert.Equal(t, int64(len(raw)), p.File.Size)
	assert.Equal(t, raw, p.Data)
}

func TestFileFromDataURIRejectsUndecodable(t *testing.T) {
	// Valid data URI, but three zero bytes are not an image.
	_, err := FileFromDataURI("data:image/png;base64,AAAA", "x.png")
	assert.True(t, errors.Is(err, ErrInvalidDataURI))

	// Not an image media type.
	_, err = FileFromDataURI(EncodeDataURI("text/plain", []byte("hello")), "x.txt")
	assert.True(t, errors.Is(err, ErrInvalidDataURI))

	_, err = FileFromDataURI("garbage", "x.png")
	assert.True(t, errors.Is(err, ErrInvalidDataURI))
}
