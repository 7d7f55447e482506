package catalog

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Store writes the staged CSV at stagePath to a parquet file at finalPath, replacing it
// atomically, and returns the number of rows written. Every column is stored as a UTF-8 string.
func Store(stagePath, finalPath string) (int, error) {
	header, records, err := readTable(stagePath)
	if err != nil {
		return 0, err
	}

	group := make(parquet.Group, len(header))
	for _, col := range header {
		group[col] = parquet.String()
	}
	schema := parquet.NewSchema("catalog", group)

	// Leaf columns are ordered by the schema, not by the CSV header.
	position := make(map[string]int, len(header))
	for i, col := range header {
		position[col] = i
	}
	columns := schema.Columns()
	rows := make([]parquet.Row, len(records))
	for r, rec := range records {
		row := make(parquet.Row, len(columns))
		for c, path := range columns {
			cell := ""
			if i := position[path[0]]; i < len(rec) {
				cell = rec[i]
			}
			row[c] = parquet.ValueOf(cell).Level(0, 0, c)
		}
		rows[r] = row
	}

	err = writeFileAtomic(finalPath, func(w io.Writer) error {
		pw := parquet.NewWriter(w, schema)
		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("write catalog rows: %w", err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("close catalog writer: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
