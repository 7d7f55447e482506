// Package ranking scores a query embedding against every corpus entry and selects the top K.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/vector"
)

// ErrInvalidK is returned when k is not a positive integer.
var ErrInvalidK = errors.New("k must be a positive integer")

type scored struct {
	idx   int
	score float64
}

// Rank computes cosine similarity between query and every record in corpus (full scan) and
// returns the k highest-scoring records in descending order. Equal scores keep corpus order.
// If k exceeds the corpus size, all records are returned. An empty corpus yields an empty result.
//
// Rank fails on a zero-norm query or corpus vector, on any dimensionality mismatch, and with
// vector.ErrNonFinite when the query or a corpus vector yields a NaN or infinite value.
func Rank(query []float32, corpus *models.CorpusIndex, k int) (*models.QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	result := &models.QueryResult{Matches: []models.ScoredImage{}, CorpusSize: corpus.Len()}
	if corpus.Len() == 0 {
		return result, nil
	}
	if j := vector.FirstNonFinite(query); j >= 0 {
		return nil, fmt.Errorf("%w: query component %d", vector.ErrNonFinite, j)
	}
	qn := vector.L2Norm(query)
	if math.IsInf(qn, 0) {
		return nil, fmt.Errorf("%w: query norm overflows", vector.ErrNonFinite)
	}
	if qn == 0 {
		return nil, &vector.DegenerateVectorError{Operand: "query"}
	}

	scores, err := scoreAll(query, qn, corpus.Records)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	result.Matches = make([]models.ScoredImage, k)
	for i := 0; i < k; i++ {
		result.Matches[i] = models.ScoredImage{
			Identifier: corpus.Records[scores[i].idx].Identifier,
			Score:      scores[i].score,
			Rank:       i + 1,
		}
	}
	return result, nil
}

func scoreAll(query []float32, qn float64, records []models.EmbeddingRecord) ([]scored, error) {
	scores := make([]scored, len(records))
	for i, rec := range records {
		if len(rec.Vector) != len(query) {
			return nil, fmt.Errorf("%w: record %q has %d, query has %d",
				vector.ErrDimensionMismatch, rec.Identifier, len(rec.Vector), len(query))
		}
		vn := vector.L2Norm(rec.Vector)
		if vn == 0 {
			return nil, &vector.DegenerateVectorError{Operand: rec.Identifier}
		}
		s := vector.CosineWithNorms(query, rec.Vector, qn, vn)
		if math.IsNaN(s) || math.IsNaN(vn) || math.IsInf(vn, 0) {
			return nil, fmt.Errorf("%w: record %q", vector.ErrNonFinite, rec.Identifier)
		}
		scores[i] = scored{idx: i, score: s}
	}
	return scores, nil
}
