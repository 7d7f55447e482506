package featurestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/vector"
)

// ErrInvalidRecords is returned by Write when the input cannot form a valid artifact.
var ErrInvalidRecords = errors.New("invalid embedding records")

// Write persists records as the artifact for split under dir and returns its path.
// Any previous artifact for the split is replaced atomically: the records are written to a
// temporary file in the same directory, synced, and renamed over the target, so readers
// observe either the old or the new artifact in full.
//
// Records must have non-empty identifiers, unique within the split, and vectors of one
// non-zero dimensionality, and only finite components. Nothing is written when validation fails.
func Write(dir, split string, records []models.EmbeddingRecord) (string, error) {
	path, err := ArtifactPath(dir, split)
	if err != nil {
		return "", err
	}
	if err := validateRecords(records); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create features dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+split+"-*.parquet.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	rows := make([]artifactRow, len(records))
	for i, r := range records {
		rows[i] = artifactRow{Identifier: r.Identifier, Embedding: r.Vector}
	}
	w := parquet.NewGenericWriter[artifactRow](tmp)
	if _, err := w.Write(rows); err != nil {
		return "", fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("replace artifact: %w", err)
	}
	committed = true
	syncDir(filepath.Dir(path))
	return path, nil
}

func validateRecords(records []models.EmbeddingRecord) error {
	seen := make(map[string]struct{}, len(records))
	dims := -1
	for i, r := range records {
		if r.Identifier == "" {
			return fmt.Errorf("%w: record %d has empty identifier", ErrInvalidRecords, i)
		}
		if _, dup := seen[r.Identifier]; dup {
			return fmt.Errorf("%w: duplicate identifier %q", ErrInvalidRecords, r.Identifier)
		}
		seen[r.Identifier] = struct{}{}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %q has empty vector", ErrInvalidRecords, r.Identifier)
		}
		if j := vector.FirstNonFinite(r.Vector); j >= 0 {
			return fmt.Errorf("%w: record %q has non-finite value %v at %d",
				ErrInvalidRecords, r.Identifier, r.Vector[j], j)
		}
		if dims < 0 {
			dims = len(r.Vector)
		} else if len(r.Vector) != dims {
			return fmt.Errorf("%w: record %q has %d dimensions, expected %d",
				ErrInvalidRecords, r.Identifier, len(r.Vector), dims)
		}
	}
	return nil
}

// syncDir flushes the directory entry of a completed rename. Errors are ignored:
// not every platform supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
