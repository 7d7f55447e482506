//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"
)

var errNoCGO = errors.New("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder returns an error when built without CGO (ONNX not available).
func NewONNXEncoder(_ Options) (*ONNXEncoder, error) {
	return nil, errNoCGO
}

// Embed is not available without CGO.
func (e *ONNXEncoder) Embed(_ context.Context, _ image.Image) ([]float32, error) {
	return nil, errNoCGO
}

// Dimensions returns 0 without CGO.
func (e *ONNXEncoder) Dimensions() int { return 0 }

// Model returns an empty identifier without CGO.
func (e *ONNXEncoder) Model() string { return "" }

// Close is a no-op without CGO.
func (e *ONNXEncoder) Close() error { return nil }
