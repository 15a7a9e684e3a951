// Package imageprep validates an uploaded image and normalizes it for the
// analyzers: RGB, bounded dimensions, JPEG, base64.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WEBP decoder

	"github.com/tendant/roast-pipeline/internal/workflows"
)

// Defaults
const (
	DefaultMaxBytes  = 10 << 20
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1080

	jpegQuality = 90
)

var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Prepared is a normalized image ready to be sent to stage 1
type Prepared struct {
	Base64         string
	SourceFormat   string
	Width, Height  int
	OriginalWidth  int
	OriginalHeight int
}

// Preparer validates and normalizes uploads
type Preparer struct {
	maxBytes  int64
	maxWidth  int
	maxHeight int
}

// NewPreparer creates a preparer. Zero values select the defaults.
func NewPreparer(maxBytes int64, maxWidth, maxHeight int) *Preparer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	return &Preparer{
		maxBytes:  maxBytes,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
	}
}

// Prepare reads at most maxBytes from r and returns the normalized image
func (p *Preparer) Prepare(r io.Reader) (*Prepared, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", workflows.ErrImageTooLarge, p.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", workflows.ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%w: supported formats are JPEG, PNG, WEBP", workflows.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflows.ErrInvalidImage, err)
	}
	if !supportedFormats[format] {
		return nil, fmt.Errorf("%w: %s", workflows.ErrUnsupportedFormat, format)
	}

	bounds := img.Bounds()
	out := &Prepared{
		SourceFormat:   format,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
	}

	// Flatten any alpha onto white so the JPEG encoding is RGB
	var normalized image.Image = img
	if format != "jpeg" {
		normalized = imaging.Overlay(imaging.New(bounds.Dx(), bounds.Dy(), color.White), img, image.Pt(0, 0), 1.0)
	}

	if bounds.Dx() > p.maxWidth || bounds.Dy() > p.maxHeight {
		normalized = imaging.Fit(normalized, p.maxWidth, p.maxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	out.Width = normalized.Bounds().Dx()
	out.Height = normalized.Bounds().Dy()
	out.Base64 = base64.StdEncoding.EncodeToString(buf.Bytes())
	return out, nil
}
