// Package search answers query-by-example image retrieval requests.
package search

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/extract"
	"github.com/hyperjump/katachi/internal/featurestore"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/ranking"
)

// Engine embeds a query image and ranks it against the feature artifacts of the configured splits.
// The corpus is reloaded from disk on every call, so a rebuilt artifact is visible to the next query.
type Engine struct {
	encoder     embedding.Encoder
	extractor   *extract.Extractor
	featuresDir string
	splits      []string
	defaultK    int
	maxK        int
	logger      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for per-query debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithLimits sets the K used when a query asks for none and the upper bound applied to K.
func WithLimits(defaultK, maxK int) EngineOption {
	return func(e *Engine) {
		if defaultK > 0 {
			e.defaultK = defaultK
		}
		if maxK > 0 {
			e.maxK = maxK
		}
	}
}

// NewEngine creates a retrieval engine over the artifacts of splits under featuresDir.
// extractor may be nil, in which case a default extractor is used.
func NewEngine(
	encoder embedding.Encoder,
	extractor *extract.Extractor,
	featuresDir string,
	splits []string,
	opts ...EngineOption,
) *Engine {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	e := &Engine{
		encoder:     encoder,
		extractor:   extractor,
		featuresDir: featuresDir,
		splits:      splits,
		defaultK:    5,
		maxK:        100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve decodes the image at imagePath and returns its k nearest corpus images.
// A k of 0 selects the default; a negative k is an error.
func (e *Engine) Retrieve(ctx context.Context, imagePath string, k int) (*models.QueryResult, error) {
	query := &models.RetrievalQuery{ImagePath: imagePath, K: k}
	if err := query.Validate(e.defaultK, e.maxK); err != nil {
		return nil, err
	}
	img, err := e.extractor.Extract(imagePath)
	if err != nil {
		return nil, err
	}
	res, err := e.retrieve(ctx, img, query.K)
	if err != nil {
		return nil, err
	}
	res.Query = imagePath
	return res, nil
}

// RetrieveReader decodes an image from r, sniffing its format, and retrieves like Retrieve.
func (e *Engine) RetrieveReader(ctx context.Context, r io.Reader, k int) (*models.QueryResult, error) {
	query := &models.RetrievalQuery{K: k}
	if err := query.Validate(e.defaultK, e.maxK); err != nil {
		return nil, err
	}
	img, err := e.extractor.ExtractReader(r)
	if err != nil {
		return nil, err
	}
	return e.retrieve(ctx, img, query.K)
}

// RetrieveImage retrieves the k nearest corpus images for an already decoded image.
func (e *Engine) RetrieveImage(ctx context.Context, img image.Image, k int) (*models.QueryResult, error) {
	query := &models.RetrievalQuery{K: k}
	if err := query.Validate(e.defaultK, e.maxK); err != nil {
		return nil, err
	}
	return e.retrieve(ctx, img, query.K)
}

func (e *Engine) retrieve(ctx context.Context, img image.Image, k int) (*models.QueryResult, error) {
	start := time.Now()
	queryVec, err := e.encoder.Embed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	corpus, err := featurestore.LoadSplits(e.featuresDir, e.splits)
	if err != nil {
		return nil, err
	}
	res, err := ranking.Rank(queryVec, corpus, k)
	if err != nil {
		return nil, err
	}
	res.QueryTime = time.Since(start).Milliseconds()
	if e.logger != nil {
		e.logger.Debug("retrieval done",
			zap.Int("corpus", corpus.Len()),
			zap.Int("k", k),
			zap.Int("matches", res.Len()),
			zap.Int64("ms", res.QueryTime))
	}
	return res, nil
}

// Splits returns the split names the engine loads, in load order.
func (e *Engine) Splits() []string {
	out := make([]string, len(e.splits))
	copy(out, e.splits)
	return out
}

// FeaturesDir returns the directory artifacts are read from.
func (e *Engine) FeaturesDir() string {
	return e.featuresDir
}
