package models

import "time"

// ScoredImage is a single ranked hit.
type ScoredImage struct {
	Identifier string  `json:"identifier"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// QueryResult is an ordered list of matches, descending by score, at most K long.
type QueryResult struct {
	Matches    []ScoredImage `json:"matches"`
	CorpusSize int           `json:"corpus_size"`
	QueryTime  int64         `json:"query_time_ms"`
	Query      string        `json:"query,omitempty"`
}

// Len returns the number of matches.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Matches)
}

// Identifiers returns the matched identifiers in rank order.
func (r *QueryResult) Identifiers() []string {
	ids := make([]string, 0, r.Len())
	if r == nil {
		return ids
	}
	for _, m := range r.Matches {
		ids = append(ids, m.Identifier)
	}
	return ids
}

// ItemFailure is one image skipped during batch extraction.
type ItemFailure struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// ExtractionReport summarizes one batch extraction run for a split.
type ExtractionReport struct {
	RunID        string        `json:"run_id"`
	Split        string        `json:"split"`
	Model        string        `json:"model"`
	ArtifactPath string        `json:"artifact_path"`
	Processed    int           `json:"processed"`
	Written      int           `json:"written"`
	Failures     []ItemFailure `json:"failures,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// Failed returns the number of skipped items.
func (r *ExtractionReport) Failed() int {
	return len(r.Failures)
}
