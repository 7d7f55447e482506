// Package storage records extraction and catalog runs in a persistent ledger.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/katachi/internal/models"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Ledger defines run bookkeeping for batch extraction and the catalog pipeline.
type Ledger interface {
	// Extraction runs
	StartRun(ctx context.Context, run *models.ExtractionRun) error
	RecordFailure(ctx context.Context, runID string, failure models.ItemFailure) error
	FinishRun(ctx context.Context, run *models.ExtractionRun) error
	GetRun(ctx context.Context, id string) (*models.ExtractionRun, error)
	LastRun(ctx context.Context, split string) (*models.ExtractionRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ExtractionRun, error)
	ListFailures(ctx context.Context, runID string) ([]models.ItemFailure, error)

	// Catalog runs
	StartCatalogRun(ctx context.Context, run *models.CatalogRun) error
	FinishCatalogRun(ctx context.Context, run *models.CatalogRun) error
	ListCatalogRuns(ctx context.Context, limit int) ([]*models.CatalogRun, error)

	Close() error
}
