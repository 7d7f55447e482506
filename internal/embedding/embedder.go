// Package embedding wraps the image-encoding model behind a single Embed capability.
package embedding

import (
	"context"
	"image"
)

// Encoder produces a fixed-length embedding for a decoded image. Implementations are
// deterministic for a given image and model, and are created once per process.
type Encoder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	// Model identifies the model version; vectors from different models are not comparable.
	Model() string
	Close() error
}

// Backend names accepted by NewEncoder.
const (
	BackendONNX = "onnx"
	BackendMock = "mock"
)

// Options configures NewEncoder.
type Options struct {
	Backend        string
	ModelPath      string
	ModelName      string
	RuntimeLibrary string
	Dimensions     int
	ImageSize      int
	InputName      string
	OutputName     string
}

// NewEncoder constructs the encoder named by opts.Backend. An empty backend means ONNX.
func NewEncoder(opts Options) (Encoder, error) {
	switch opts.Backend {
	case BackendONNX, "":
		enc, err := NewONNXEncoder(opts)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case BackendMock:
		return NewMockEncoder(opts.Dimensions), nil
	default:
		return nil, &UnknownBackendError{Backend: opts.Backend}
	}
}

// UnknownBackendError is returned by NewEncoder for an unsupported backend name.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "unknown embedding backend: " + e.Backend + " (supported: onnx, mock)"
}
