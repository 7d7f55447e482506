package embedding

import (
	"context"
	"errors"
	"image/color"
	"math"
	"testing"
)

func TestMockEncoder_DeterministicAndNormalized(t *testing.T) {
	e := NewMockEncoder(32)
	defer e.Close()
	img := solid(20, 20, color.RGBA{R: 200, G: 10, B: 30, A: 255})
	a, err := e.Embed(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), img)
	if len(a) != 32 {
		t.Fatalf("len = %d", len(a))
	}
	var sum float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("not deterministic at %d", i)
		}
		sum += float64(a[i]) * float64(a[i])
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("norm^2 = %v, want 1", sum)
	}
}

func TestMockEncoder_DistinguishesImages(t *testing.T) {
	e := NewMockEncoder(16)
	red, _ := e.Embed(context.Background(), solid(8, 8, color.RGBA{R: 255, A: 255}))
	blue, _ := e.Embed(context.Background(), solid(8, 8, color.RGBA{B: 255, A: 255}))
	same := true
	for i := range red {
		if red[i] != blue[i] {
			same = false
		}
	}
	if same {
		t.Error("different images should produce different embeddings")
	}
}

func TestMockEncoder_Defaults(t *testing.T) {
	e := NewMockEncoder(0)
	if e.Dimensions() != 512 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
	if e.Model() == "" {
		t.Error("Model should be set")
	}
}

func TestMockEncoder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEncoder(4).Embed(ctx, solid(2, 2, color.White))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewEncoder(t *testing.T) {
	enc, err := NewEncoder(Options{Backend: BackendMock, Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	if enc.Dimensions() != 8 {
		t.Errorf("Dimensions = %d", enc.Dimensions())
	}
	_, err = NewEncoder(Options{Backend: "tensorflow"})
	var unknown *UnknownBackendError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownBackendError, got %v", err)
	}
}
