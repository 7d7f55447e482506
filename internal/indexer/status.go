package indexer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/featurestore"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/storage"
)

// SplitStatus describes a split's artifact on disk and its most recent extraction run.
type SplitStatus struct {
	Name     string                     `json:"name"`
	ImageDir string                     `json:"image_dir"`
	Artifact *featurestore.ArtifactInfo `json:"artifact,omitempty"`
	LastRun  *models.ExtractionRun      `json:"last_run,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Status inspects every configured split. A corrupt artifact is reported in the split's
// Error field rather than failing the whole call. The second result is the size on disk of
// the artifacts plus the ledger database, when the ledger is file-backed.
func (idx *Indexer) Status(ctx context.Context) ([]SplitStatus, int64, error) {
	out := make([]SplitStatus, 0, len(idx.splits))
	paths := make([]string, 0, len(idx.splits))
	for _, split := range idx.splits {
		st := SplitStatus{Name: split.Name, ImageDir: split.ImageDir}
		path, err := featurestore.ArtifactPath(idx.featuresDir, split.Name)
		if err != nil {
			return nil, 0, err
		}
		paths = append(paths, path)
		if info, err := featurestore.Inspect(path); err != nil {
			st.Error = err.Error()
		} else {
			st.Artifact = info
		}
		if idx.ledger != nil {
			run, err := idx.ledger.LastRun(ctx, split.Name)
			switch {
			case err == nil:
				st.LastRun = run
			case errors.Is(err, storage.ErrNotFound):
			default:
				if idx.logger != nil {
					idx.logger.Warn("last run lookup failed", zap.String("split", split.Name), zap.Error(err))
				}
			}
		}
		out = append(out, st)
	}
	if files, ok := idx.ledger.(interface{ Files() []string }); ok {
		paths = append(paths, files.Files()...)
	}
	size, err := storage.DiskUsageBytes(paths...)
	if err != nil {
		return out, 0, err
	}
	return out, size, nil
}
