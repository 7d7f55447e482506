package catalog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Ingest converts the JSON array of objects at rawPath into a CSV at stagePath and returns the
// number of data rows. The header is the sorted union of all object keys; a key that is absent
// from an object, or whose value is null, becomes an empty cell. Numbers keep their JSON text;
// nested objects and arrays are written as compact JSON.
func Ingest(rawPath, stagePath string) (int, error) {
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return 0, fmt.Errorf("read raw catalog: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var objects []map[string]interface{}
	if err := dec.Decode(&objects); err != nil {
		return 0, fmt.Errorf("parse raw catalog: %w", err)
	}

	keys := make(map[string]struct{})
	for _, obj := range objects {
		for k := range obj {
			keys[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)
	if len(header) == 0 {
		return 0, fmt.Errorf("raw catalog %s has no fields", rawPath)
	}

	records := make([][]string, len(objects))
	for i, obj := range objects {
		row := make([]string, len(header))
		for j, k := range header {
			cell, err := cellString(obj[k])
			if err != nil {
				return 0, fmt.Errorf("row %d field %q: %w", i+1, k, err)
			}
			row[j] = cell
		}
		records[i] = row
	}

	err = writeFileAtomic(stagePath, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(records); err != nil {
			return fmt.Errorf("write staged catalog: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func cellString(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
