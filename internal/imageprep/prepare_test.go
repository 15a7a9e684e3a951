package imageprep

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/roast-pipeline/internal/workflows"
)

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, b64 string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestPrepare_SmallPNG(t *testing.T) {
	out, err := NewPreparer(0, 0, 0).Prepare(bytes.NewReader(encodePNG(t, 40, 30, color.NRGBA{R: 200, A: 255})))
	require.NoError(t, err)

	assert.Equal(t, "png", out.SourceFormat)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 30, out.Height)

	img := decodeJPEG(t, out.Base64)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
}

func TestPrepare_TransparencyFlattenedOntoWhite(t *testing.T) {
	out, err := NewPreparer(0, 0, 0).Prepare(bytes.NewReader(encodePNG(t, 16, 16, color.NRGBA{})))
	require.NoError(t, err)

	r, g, b, _ := decodeJPEG(t, out.Base64).At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestPrepare_ResizesToFit(t *testing.T) {
	out, err := NewPreparer(0, 100, 50).Prepare(bytes.NewReader(encodePNG(t, 400, 100, color.White)))
	require.NoError(t, err)

	assert.Equal(t, 400, out.OriginalWidth)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 25, out.Height, "aspect ratio preserved")
}

func TestPrepare_Rejections(t *testing.T) {
	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black, color.White}), nil))

	tests := []struct {
		name    string
		data    []byte
		maxSize int64
		want    error
	}{
		{"empty", nil, 0, workflows.ErrInvalidImage},
		{"not an image", []byte(strings.Repeat("x", 100)), 0, workflows.ErrUnsupportedFormat},
		{"gif", gifBuf.Bytes(), 0, workflows.ErrUnsupportedFormat},
		{"truncated png", encodePNG(t, 20, 20, color.Black)[:60], 0, workflows.ErrInvalidImage},
		{"too large", encodePNG(t, 20, 20, color.Black), 10, workflows.ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreparer(tt.maxSize, 0, 0).Prepare(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
