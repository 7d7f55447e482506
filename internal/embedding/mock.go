package embedding

import (
	"context"
	"image"

	"github.com/hyperjump/katachi/pkg/utils"
)

const mockImageSize = 8

// MockEncoder is a deterministic encoder for tests and the "mock" backend. It derives the
// embedding from a tiny preprocessed thumbnail, so identical images get identical vectors
// and similar colors get similar vectors.
type MockEncoder struct {
	dimensions int
}

// NewMockEncoder returns an encoder that produces deterministic embeddings of the given dimensions.
func NewMockEncoder(dimensions int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEncoder{dimensions: dimensions}
}

// Embed returns an L2-normalized vector built from the image's normalized pixel values.
func (e *MockEncoder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels := Preprocess(img, mockImageSize)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = pixels[i%len(pixels)]
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// Model returns the mock model identifier.
func (e *MockEncoder) Model() string {
	return "mock-thumbnail-v1"
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}
