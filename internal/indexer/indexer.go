// Package indexer runs batch embedding extraction for dataset splits and writes feature artifacts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/extract"
	"github.com/hyperjump/katachi/internal/featurestore"
	"github.com/hyperjump/katachi/internal/fileid"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/storage"
)

// ErrUnknownSplit is returned when a split name is not configured.
var ErrUnknownSplit = errors.New("unknown split")

// Split is one named image directory that produces one feature artifact.
type Split struct {
	Name     string
	ImageDir string
}

// Indexer embeds the images of each split and replaces the split's artifact.
type Indexer struct {
	encoder     embedding.Encoder
	extractor   *extract.Extractor
	featuresDir string
	splits      []Split
	extensions  []string
	ledger      storage.Ledger            // optional
	cache       *embedding.EmbeddingCache // optional
	logger      *zap.Logger               // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress and per-item failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithLedger records every run and its skipped items in ledger.
func WithLedger(l storage.Ledger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = l }
}

// WithCache reuses embeddings of unchanged files across runs.
func WithCache(c *embedding.EmbeddingCache) IndexerOption {
	return func(idx *Indexer) { idx.cache = c }
}

// WithExtensions overrides the image extensions picked up from split directories.
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) {
		if len(exts) > 0 {
			idx.extensions = exts
		}
	}
}

// NewIndexer creates an indexer writing artifacts for splits under featuresDir.
// extractor may be nil, in which case a default extractor is used.
func NewIndexer(
	encoder embedding.Encoder,
	extractor *extract.Extractor,
	featuresDir string,
	splits []Split,
	opts ...IndexerOption,
) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		encoder:     encoder,
		extractor:   extractor,
		featuresDir: featuresDir,
		splits:      splits,
		extensions:  extract.DefaultExtensions,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Splits returns the configured splits in order.
func (idx *Indexer) Splits() []Split {
	out := make([]Split, len(idx.splits))
	copy(out, idx.splits)
	return out
}

// Lookup returns the configured split with the given name.
func (idx *Indexer) Lookup(name string) (Split, bool) {
	for _, s := range idx.splits {
		if s.Name == name {
			return s, true
		}
	}
	return Split{}, false
}

// FeaturesDir returns the directory artifacts are written to.
func (idx *Indexer) FeaturesDir() string {
	return idx.featuresDir
}

// IndexSplitByName runs IndexSplit for a configured split.
func (idx *Indexer) IndexSplitByName(ctx context.Context, name string) (*models.ExtractionReport, error) {
	split, ok := idx.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, name)
	}
	return idx.IndexSplit(ctx, split)
}

// IndexAll extracts every configured split in order. Splits whose image directory does not
// exist are skipped. It stops at the first split that fails and returns the reports so far.
func (idx *Indexer) IndexAll(ctx context.Context) ([]*models.ExtractionReport, error) {
	var reports []*models.ExtractionReport
	for _, split := range idx.splits {
		if _, err := os.Stat(split.ImageDir); os.IsNotExist(err) {
			if idx.logger != nil {
				idx.logger.Warn("split image directory missing, skipping",
					zap.String("split", split.Name), zap.String("dir", split.ImageDir))
			}
			continue
		}
		report, err := idx.IndexSplit(ctx, split)
		if err != nil {
			return reports, fmt.Errorf("split %s: %w", split.Name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// IndexSplit embeds every image in split.ImageDir (non-recursive, lexical order) and replaces
// the split's artifact with the result. Images that cannot be decoded or embedded are skipped
// and reported; only a cancelled context, an unreadable directory, or a failed artifact write
// fails the run. Runs for the same split are serialized.
func (idx *Indexer) IndexSplit(ctx context.Context, split Split) (*models.ExtractionReport, error) {
	lock := idx.splitLock(split.Name)
	lock.Lock()
	defer lock.Unlock()

	report := &models.ExtractionReport{
		Split:     split.Name,
		Model:     idx.encoder.Model(),
		StartedAt: time.Now(),
	}
	run := &models.ExtractionRun{Split: split.Name, Model: report.Model, StartedAt: report.StartedAt}
	if idx.ledger != nil {
		if err := idx.ledger.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
		report.RunID = run.ID
	}

	records, err := idx.embedSplit(ctx, split, report)
	if err == nil {
		report.ArtifactPath, err = featurestore.Write(idx.featuresDir, split.Name, records)
		if err == nil {
			report.Written = len(records)
		}
	}
	report.Duration = time.Since(report.StartedAt)
	idx.finishRun(run, report, err)
	if err != nil {
		return report, err
	}

	if idx.logger != nil {
		idx.logger.Info("split extracted",
			zap.String("split", split.Name),
			zap.String("artifact", report.ArtifactPath),
			zap.Int("written", report.Written),
			zap.Int("failed", report.Failed()),
			zap.Duration("duration", report.Duration))
	}
	return report, nil
}

func (idx *Indexer) embedSplit(ctx context.Context, split Split, report *models.ExtractionReport) ([]models.EmbeddingRecord, error) {
	paths, err := idx.listImages(split.ImageDir)
	if err != nil {
		return nil, err
	}
	records := make([]models.EmbeddingRecord, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Processed++
		name := imageIdentifier(split, path)
		vec, err := idx.embedFile(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			idx.recordFailure(ctx, report, models.ItemFailure{Identifier: name, Error: err.Error()})
			continue
		}
		records = append(records, models.EmbeddingRecord{Identifier: name, Vector: vec})
	}
	return records, nil
}

func (idx *Indexer) embedFile(ctx context.Context, path string) ([]float32, error) {
	key := ""
	if idx.cache != nil {
		if info, err := os.Stat(path); err == nil {
			key = fileid.Fingerprint(path, info) + ":" + idx.encoder.Model()
			if vec, ok := idx.cache.Get(key); ok {
				return vec, nil
			}
		}
	}
	img, err := idx.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	vec, err := idx.encoder.Embed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if key != "" {
		idx.cache.Set(key, vec)
	}
	if idx.logger != nil {
		idx.logger.Debug("image embedded", zap.String("path", path))
	}
	return vec, nil
}

// imageIdentifier names a corpus image by its split's image directory joined with the file
// name, so the identifier opens the source image and stays distinct across splits.
func imageIdentifier(split Split, path string) string {
	return filepath.Join(split.ImageDir, filepath.Base(path))
}

// listImages returns the regular files in dir with an allowed extension, sorted by name.
func (idx *Indexer) listImages(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !extract.ExtensionAllowed(e.Name(), idx.extensions) {
			continue
		}
		path := filepath.Join(absDir, e.Name())
		// Resolve symlinks so only regular files are embedded
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (idx *Indexer) recordFailure(ctx context.Context, report *models.ExtractionReport, failure models.ItemFailure) {
	report.Failures = append(report.Failures, failure)
	if idx.logger != nil {
		idx.logger.Warn("skipping image",
			zap.String("split", report.Split),
			zap.String("identifier", failure.Identifier),
			zap.String("error", failure.Error))
	}
	if idx.ledger == nil || report.RunID == "" {
		return
	}
	if err := idx.ledger.RecordFailure(ctx, report.RunID, failure); err != nil && idx.logger != nil {
		idx.logger.Error("record failure in ledger", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

func (idx *Indexer) finishRun(run *models.ExtractionRun, report *models.ExtractionReport, runErr error) {
	if idx.ledger == nil || run.ID == "" {
		return
	}
	run.Status = models.RunStatusSucceeded
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}
	run.ArtifactPath = report.ArtifactPath
	run.Processed = report.Processed
	run.Written = report.Written
	run.Failed = report.Failed()
	// The run's context may already be cancelled; the outcome is still recorded.
	if err := idx.ledger.FinishRun(context.Background(), run); err != nil && idx.logger != nil {
		idx.logger.Error("record run finish in ledger", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (idx *Indexer) splitLock(name string) *sync.Mutex {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	l, ok := idx.locks[name]
	if !ok {
		l = &sync.Mutex{}
		idx.locks[name] = l
	}
	return l
}
