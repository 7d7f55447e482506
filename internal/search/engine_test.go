package search

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/extract"
	"github.com/hyperjump/katachi/internal/featurestore"
	"github.com/hyperjump/katachi/internal/models"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

var (
	red   = color.RGBA{R: 240, G: 10, B: 10, A: 255}
	green = color.RGBA{R: 10, G: 240, B: 10, A: 255}
	blue  = color.RGBA{R: 10, G: 10, B: 240, A: 255}
)

// buildCorpus writes artifacts for train (red, green) and test (blue) using enc.
func buildCorpus(t *testing.T, enc embedding.Encoder, dir string) {
	t.Helper()
	ctx := context.Background()
	embed := func(id string, c color.Color) models.EmbeddingRecord {
		v, err := enc.Embed(ctx, solid(c))
		if err != nil {
			t.Fatal(err)
		}
		return models.EmbeddingRecord{Identifier: id, Vector: v}
	}
	if _, err := featurestore.Write(dir, "train", []models.EmbeddingRecord{embed("red.png", red), embed("green.png", green)}); err != nil {
		t.Fatal(err)
	}
	if _, err := featurestore.Write(dir, "test", []models.EmbeddingRecord{embed("blue.png", blue)}); err != nil {
		t.Fatal(err)
	}
}

func TestRetrieve_NearestFirst(t *testing.T) {
	dir := t.TempDir()
	enc := embedding.NewMockEncoder(32)
	buildCorpus(t, enc, dir)
	queryPath := filepath.Join(dir, "query.png")
	writePNG(t, queryPath, solid(green))

	e := NewEngine(enc, nil, dir, []string{"train", "test", "val"})
	res, err := e.Retrieve(context.Background(), queryPath, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 2 {
		t.Fatalf("expected 2 matches, got %d", res.Len())
	}
	if res.Matches[0].Identifier != "green.png" || res.Matches[0].Rank != 1 {
		t.Errorf("top match = %+v", res.Matches[0])
	}
	if res.Matches[0].Score < 0.999 {
		t.Errorf("identical image should score ~1, got %v", res.Matches[0].Score)
	}
	if res.Matches[0].Score < res.Matches[1].Score {
		t.Error("matches not in descending order")
	}
	if res.CorpusSize != 3 {
		t.Errorf("corpus size = %d, want 3", res.CorpusSize)
	}
	if res.Query != queryPath {
		t.Errorf("query = %q", res.Query)
	}
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	queryPath := filepath.Join(dir, "query.png")
	writePNG(t, queryPath, solid(red))

	e := NewEngine(embedding.NewMockEncoder(16), nil, filepath.Join(dir, "features"), []string{"train", "test", "val"})
	res, err := e.Retrieve(context.Background(), queryPath, 5)
	if err != nil {
		t.Fatalf("empty corpus should not error: %v", err)
	}
	if res.Len() != 0 || res.Matches == nil {
		t.Errorf("expected empty non-nil matches, got %+v", res.Matches)
	}
}

func TestRetrieve_DefaultAndMaxK(t *testing.T) {
	dir := t.TempDir()
	enc := embedding.NewMockEncoder(16)
	buildCorpus(t, enc, dir)

	e := NewEngine(enc, nil, dir, []string{"train", "test"}, WithLimits(1, 2))
	res, err := e.RetrieveImage(context.Background(), solid(red), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 1 {
		t.Errorf("default k: got %d matches, want 1", res.Len())
	}
	res, err = e.RetrieveImage(context.Background(), solid(red), 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 2 {
		t.Errorf("max k: got %d matches, want 2", res.Len())
	}
	if _, err := e.RetrieveImage(context.Background(), solid(red), 3); !errors.Is(err, models.ErrKOutOfRange) {
		t.Errorf("k above max: expected ErrKOutOfRange, got %v", err)
	}
	if _, err := e.RetrieveImage(context.Background(), solid(red), -1); !errors.Is(err, models.ErrKOutOfRange) {
		t.Errorf("negative k: expected ErrKOutOfRange, got %v", err)
	}
}

func TestRetrieve_UndecodableQuery(t *testing.T) {
	dir := t.TempDir()
	queryPath := filepath.Join(dir, "query.png")
	if err := os.WriteFile(queryPath, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(embedding.NewMockEncoder(16), nil, dir, []string{"train"})
	_, err := e.Retrieve(context.Background(), queryPath, 3)
	var decodeErr *extract.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}

func TestRetrieveReader(t *testing.T) {
	dir := t.TempDir()
	enc := embedding.NewMockEncoder(16)
	buildCorpus(t, enc, dir)
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(blue)); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(enc, nil, dir, []string{"train", "test"})
	res, err := e.RetrieveReader(context.Background(), &buf, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 1 || res.Matches[0].Identifier != "blue.png" {
		t.Errorf("got %+v", res.Matches)
	}
}

func TestRetrieve_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "train_embeddings.parquet"), []byte("nope"), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(embedding.NewMockEncoder(16), nil, dir, []string{"train"})
	_, err := e.RetrieveImage(context.Background(), solid(red), 1)
	var corrupt *featurestore.CorruptArtifactError
	if !errors.As(err, &corrupt) {
		t.Errorf("expected CorruptArtifactError, got %v", err)
	}
}
