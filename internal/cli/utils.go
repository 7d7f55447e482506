// Package cli provides output formatting for the katachi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one match per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// maxIdentifierWidth caps the column padding in text output; longer identifiers overflow it.
const maxIdentifierWidth = 60

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

// WriteQueryResult writes retrieval matches to w in the given format.
func WriteQueryResult(w io.Writer, result *models.QueryResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, result)
	case OutputCompact:
		for _, m := range result.Matches {
			fmt.Fprintf(w, "%d\t%.4f\t%s\n", m.Rank, m.Score, m.Identifier)
		}
		return nil
	default:
		writeQueryResultText(w, result)
		return nil
	}
}

func writeQueryResultText(w io.Writer, result *models.QueryResult) {
	fmt.Fprintf(w, "\nFound %d matches among %d images in %dms\n\n", result.Len(), result.CorpusSize, result.QueryTime)
	if result.Len() == 0 {
		fmt.Fprintln(w, "No feature artifacts loaded; run `katachi extract` first.")
		return
	}
	// Identifiers are image paths and are printed whole; only the padding is capped.
	width := 0
	for _, m := range result.Matches {
		if n := utf8.RuneCountInString(m.Identifier); n > width {
			width = n
		}
	}
	if width > maxIdentifierWidth {
		width = maxIdentifierWidth
	}
	for _, m := range result.Matches {
		fmt.Fprintf(w, "%3d. %-*s  %.4f\n", m.Rank, width, m.Identifier, m.Score)
	}
	fmt.Fprintln(w)
}

// WriteExtractionReports writes a summary of batch extraction runs.
func WriteExtractionReports(w io.Writer, reports []*models.ExtractionReport, format OutputFormat) error {
	if format == OutputJSON {
		if reports == nil {
			reports = []*models.ExtractionReport{}
		}
		return writeJSON(w, reports)
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "No splits extracted.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%s: %d written, %d failed (%d processed) in %s -> %s\n",
			r.Split, r.Written, r.Failed(), r.Processed, r.Duration.Round(time.Millisecond), r.ArtifactPath)
		if format == OutputCompact {
			continue
		}
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  skipped %s: %s\n", f.Identifier, utils.Truncate(f.Error, 120))
		}
	}
	return nil
}

// WriteStatus writes per-split artifact status and total artifact size.
func WriteStatus(w io.Writer, statuses []indexer.SplitStatus, diskBytes int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"splits":           statuses,
			"disk_usage_bytes": diskBytes,
		})
	}
	for _, st := range statuses {
		switch {
		case st.Error != "":
			fmt.Fprintf(w, "%-8s error: %s\n", st.Name, st.Error)
		case st.Artifact == nil || !st.Artifact.Exists:
			fmt.Fprintf(w, "%-8s no artifact\n", st.Name)
		default:
			fmt.Fprintf(w, "%-8s %d records, %s, updated %s\n", st.Name, st.Artifact.Records,
				FormatBytes(st.Artifact.SizeBytes), st.Artifact.ModifiedAt.Format(time.RFC3339))
		}
		if format != OutputCompact && st.LastRun != nil {
			fmt.Fprintf(w, "         last run %s: %s, %d written, %d failed\n",
				st.LastRun.ID, st.LastRun.Status, st.LastRun.Written, st.LastRun.Failed)
		}
	}
	fmt.Fprintf(w, "Total artifact size: %s\n", FormatBytes(diskBytes))
	return nil
}

// FormatBytes renders n using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
