// Package featurestore persists per-split embedding records as parquet artifacts and
// loads them back into an in-memory corpus.
package featurestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

const artifactSuffix = "_embeddings.parquet"

// Column names of the artifact schema.
const (
	ColumnIdentifier = "identifier"
	ColumnEmbedding  = "embedding"
)

// artifactRow is the on-disk row layout. The embedding uses the parquet LIST logical type
// so artifacts are readable by other parquet tooling.
type artifactRow struct {
	Identifier string    `parquet:"identifier"`
	Embedding  []float32 `parquet:"embedding,list"`
}

// ErrInvalidSplit is returned for split names that cannot form an artifact file name.
var ErrInvalidSplit = errors.New("invalid split name")

// CorruptArtifactError reports an artifact that exists but cannot be used: it is not
// parquet, lacks the expected columns, or holds vectors of inconsistent dimensionality.
type CorruptArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt artifact %s: %s", e.Path, e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error { return e.Err }

// ArtifactPath returns the deterministic artifact location for split under dir.
func ArtifactPath(dir, split string) (string, error) {
	if err := ValidateSplit(split); err != nil {
		return "", err
	}
	return filepath.Join(dir, split+artifactSuffix), nil
}

// Paths resolves split names to artifact paths under dir, preserving order.
func Paths(dir string, splits []string) ([]string, error) {
	paths := make([]string, 0, len(splits))
	for _, s := range splits {
		p, err := ArtifactPath(dir, s)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ValidateSplit reports whether split can name an artifact file inside the features directory.
func ValidateSplit(split string) error {
	if split == "" || split == "." || split == ".." ||
		strings.ContainsAny(split, `/\`) || strings.ContainsRune(split, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidSplit, split)
	}
	return nil
}

// ArtifactInfo describes a persisted artifact without loading its vectors.
type ArtifactInfo struct {
	Path       string    `json:"path"`
	Exists     bool      `json:"exists"`
	Records    int64     `json:"records"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// Inspect reads the artifact footer at path. A missing artifact is reported with
// Exists=false and no error.
func Inspect(path string) (*ArtifactInfo, error) {
	info := &ArtifactInfo{Path: path}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	pf, err := openArtifact(f, path, stat.Size())
	if err != nil {
		return nil, err
	}
	info.Exists = true
	info.Records = pf.NumRows()
	info.SizeBytes = stat.Size()
	info.ModifiedAt = stat.ModTime()
	return info, nil
}

// openArtifact opens the parquet footer and checks the two-column schema.
func openArtifact(f *os.File, path string, size int64) (*parquet.File, error) {
	pf, err := parquet.OpenFile(f, size)
	if err != nil {
		return nil, &CorruptArtifactError{Path: path, Reason: "not a parquet file", Err: err}
	}
	schema := pf.Schema()
	id, ok := schema.Lookup(ColumnIdentifier)
	if !ok || id.Node.Type().Kind() != parquet.ByteArray {
		return nil, &CorruptArtifactError{Path: path, Reason: "missing string column " + ColumnIdentifier}
	}
	emb, ok := schema.Lookup(ColumnEmbedding, "list", "element")
	if !ok || emb.Node.Type().Kind() != parquet.Float {
		return nil, &CorruptArtifactError{Path: path, Reason: "missing float list column " + ColumnEmbedding}
	}
	return pf, nil
}
