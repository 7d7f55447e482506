package catalog

// Validate checks the staged CSV at stagePath for empty fields and returns the number of data
// rows. Every empty cell is reported in a single *ValidationError.
func Validate(stagePath string) (int, error) {
	header, records, err := readTable(stagePath)
	if err != nil {
		return 0, err
	}
	var cells []NullCell
	for i, rec := range records {
		for j, col := range header {
			if j >= len(rec) || rec[j] == "" {
				cells = append(cells, NullCell{Row: i + 1, Column: col})
			}
		}
	}
	if len(cells) > 0 {
		return len(records), &ValidationError{Path: stagePath, Cells: cells}
	}
	return len(records), nil
}
