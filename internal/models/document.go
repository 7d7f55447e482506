// Package models defines core data structures for embeddings, corpora, and retrieval results.
package models

// EmbeddingRecord is one corpus entry: a stable image reference and its embedding.
// Records are immutable once produced; re-extraction rebuilds the whole split artifact.
type EmbeddingRecord struct {
	Identifier string    `json:"identifier"`
	Vector     []float32 `json:"-"`
}

// Dimensions returns the length of the record's vector.
func (r EmbeddingRecord) Dimensions() int {
	return len(r.Vector)
}

// CorpusIndex is the in-memory concatenation of all loaded split artifacts.
// Order is artifact read order, then intra-artifact order.
type CorpusIndex struct {
	Records []EmbeddingRecord
}

// Len returns the number of records in the corpus.
func (c *CorpusIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Dimensions returns the vector dimensionality of the corpus, or 0 when empty.
func (c *CorpusIndex) Dimensions() int {
	if c.Len() == 0 {
		return 0
	}
	return len(c.Records[0].Vector)
}

// Append adds records to the end of the corpus, preserving their order.
func (c *CorpusIndex) Append(records ...EmbeddingRecord) {
	c.Records = append(c.Records, records...)
}
