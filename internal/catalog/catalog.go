// Package catalog moves product catalog data from a raw JSON dump through a staged CSV into a
// parquet table, validating that no field is missing on the way.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Step names, as recorded in the ledger.
const (
	StepIngest   = "ingest"
	StepValidate = "validate"
	StepStore    = "store"
)

// StepError reports which pipeline step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NullCell locates one empty field in the staged table. Row is 1-based and excludes the header.
type NullCell struct {
	Row    int
	Column string
}

// ValidationError lists every empty field found in the staged table.
type ValidationError struct {
	Path  string
	Cells []NullCell
}

const maxReportedCells = 10

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: found %d null values", e.Path, len(e.Cells))
	for i, c := range e.Cells {
		if i == maxReportedCells {
			fmt.Fprintf(&b, " (and %d more)", len(e.Cells)-maxReportedCells)
			break
		}
		sep := ", "
		if i == 0 {
			sep = ": "
		}
		fmt.Fprintf(&b, "%srow %d column %q", sep, c.Row, c.Column)
	}
	return b.String()
}

// readTable reads a staged CSV into its header and records.
func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: missing header", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if h == "" {
			return nil, nil, fmt.Errorf("%s: empty column name in header", path)
		}
		if seen[h] {
			return nil, nil, fmt.Errorf("%s: duplicate column %q", path, h)
		}
		seen[h] = true
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return header, records, nil
}

// writeFileAtomic writes path through a temporary file in the same directory, so readers see
// either the previous content or the new content in full.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
