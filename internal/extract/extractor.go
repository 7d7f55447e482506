// Package extract decodes image files into rasters for the embedding adapter.
package extract

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DecodeError reports an image that could not be read or decoded.
// It is non-fatal during batch extraction and fatal on the query path.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Default decode limits. Dimensions are read from the image header before any pixel
// buffer is allocated, so an image declaring more than DefaultMaxPixels is never decoded.
const (
	DefaultMaxPixels      = 64 << 20
	DefaultMaxAspectRatio = 20.0
)

// Extractor decodes images from files or streams.
type Extractor struct {
	maxBytes       int64
	maxPixels      int64
	maxAspectRatio float64
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxBytes limits how many bytes are read from a single image. Zero means no limit.
func WithMaxBytes(n int64) ExtractorOption {
	return func(e *Extractor) { e.maxBytes = n }
}

// WithMaxPixels limits width*height of a decoded image. Zero or negative keeps the default.
func WithMaxPixels(n int64) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

// WithMaxAspectRatio limits the ratio of the long side to the short side.
// Values below 1 keep the default.
func WithMaxAspectRatio(r float64) ExtractorOption {
	return func(e *Extractor) {
		if r >= 1 {
			e.maxAspectRatio = r
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{maxPixels: DefaultMaxPixels, maxAspectRatio: DefaultMaxAspectRatio}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and decodes it. Any failure is returned as *DecodeError.
func (e *Extractor) Extract(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()
	content, err := e.readAll(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	img, err := e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// ExtractReader decodes an image from r (e.g. an upload). The format is sniffed from content.
func (e *Extractor) ExtractReader(r io.Reader) (image.Image, error) {
	content, err := e.readAll(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	img, err := e.ExtractBytes(content, "")
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// ExtractBytes decodes content. ext (with leading dot) selects the expected format;
// when it is empty or unknown the format is sniffed. A file whose content does not
// match its extension is rejected, as is one whose header declares more pixels or a
// more extreme aspect ratio than the extractor allows.
func (e *Extractor) ExtractBytes(content []byte, ext string) (image.Image, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if err := e.checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if want, ok := formatForExtension(ext); ok && want != format {
		return nil, fmt.Errorf("extension %q does not match %s content", ext, format)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return img, nil
}

func (e *Extractor) checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("image has no pixels")
	}
	if e.maxPixels > 0 && int64(w)*int64(h) > e.maxPixels {
		return fmt.Errorf("image is %dx%d, exceeds %d pixels", w, h, e.maxPixels)
	}
	long, short := max(w, h), min(w, h)
	if e.maxAspectRatio > 0 && float64(long)/float64(short) > e.maxAspectRatio {
		return fmt.Errorf("image is %dx%d, aspect ratio exceeds %g", w, h, e.maxAspectRatio)
	}
	return nil
}

func (e *Extractor) readAll(r io.Reader) ([]byte, error) {
	if e.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	content, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > e.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", e.maxBytes)
	}
	return content, nil
}
