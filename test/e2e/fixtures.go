// Package e2e provides end-to-end tests; this file encodes small images in every supported format.
package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// SupportedImageExtensions is the list of file extensions used in E2E file-based tests.
// It matches the extractor's default extension allow-list.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png"}

// EncodeImage returns img encoded in the format implied by ext.
func EncodeImage(ext string, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch ext {
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension %q", ext)
	}
	return buf.Bytes(), nil
}
