package featurestore

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/vector"
)

// Load reads the artifacts at paths, in order, and concatenates their records into one
// corpus. Paths that do not exist are skipped. An artifact that exists but cannot be
// parsed, holds a NaN or infinite component, or whose vectors disagree in dimensionality
// with the first record loaded, fails the whole load with *CorruptArtifactError.
func Load(paths []string) (*models.CorpusIndex, error) {
	corpus := &models.CorpusIndex{Records: []models.EmbeddingRecord{}}
	dims := 0
	for _, path := range paths {
		records, err := readArtifact(path)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if len(r.Vector) == 0 {
				return nil, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("record %q has empty vector", r.Identifier)}
			}
			if j := vector.FirstNonFinite(r.Vector); j >= 0 {
				return nil, &CorruptArtifactError{
					Path:   path,
					Reason: fmt.Sprintf("record %q has non-finite value %v at %d", r.Identifier, r.Vector[j], j),
				}
			}
			if dims == 0 {
				dims = len(r.Vector)
			} else if len(r.Vector) != dims {
				return nil, &CorruptArtifactError{
					Path:   path,
					Reason: fmt.Sprintf("record %q has %d dimensions, corpus has %d", r.Identifier, len(r.Vector), dims),
				}
			}
		}
		corpus.Append(records...)
	}
	return corpus, nil
}

// LoadSplits resolves split names under dir and loads them with Load.
func LoadSplits(dir string, splits []string) (*models.CorpusIndex, error) {
	paths, err := Paths(dir, splits)
	if err != nil {
		return nil, err
	}
	return Load(paths)
}

// readArtifact returns the records of one artifact, or nil when it does not exist.
func readArtifact(path string) ([]models.EmbeddingRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if stat.IsDir() {
		return nil, &CorruptArtifactError{Path: path, Reason: "is a directory"}
	}
	if _, err := openArtifact(f, path, stat.Size()); err != nil {
		return nil, err
	}
	rows, err := parquet.Read[artifactRow](f, stat.Size())
	if err != nil {
		return nil, &CorruptArtifactError{Path: path, Reason: "read rows", Err: err}
	}
	records := make([]models.EmbeddingRecord, len(rows))
	for i, row := range rows {
		records[i] = models.EmbeddingRecord{Identifier: row.Identifier, Vector: row.Embedding}
	}
	return records, nil
}
