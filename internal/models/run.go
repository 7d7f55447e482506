package models

import "time"

// Run statuses recorded in the ledger.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ExtractionRun is the ledger entry for one batch extraction of a split.
type ExtractionRun struct {
	ID           string     `json:"id"`
	Split        string     `json:"split"`
	Model        string     `json:"model"`
	Status       string     `json:"status"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	Processed    int        `json:"processed"`
	Written      int        `json:"written"`
	Failed       int        `json:"failed"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// CatalogRun is the ledger entry for one attempt of the catalog pipeline.
type CatalogRun struct {
	ID         string     `json:"id"`
	Attempt    int        `json:"attempt"`
	Status     string     `json:"status"`
	Step       string     `json:"step,omitempty"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
