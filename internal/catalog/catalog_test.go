package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/storage"
)

func writeRaw(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog_raw.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

const cleanCatalog = `[
  {"id": "1", "name": "mug", "price": 9.50, "tags": ["kitchen"]},
  {"name": "lamp, desk", "id": "2", "price": 30, "tags": []},
  {"id": "3", "name": "chair", "price": 120, "tags": ["office", "wood"]}
]`

func TestIngest_SortedHeaderAndCells(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage", "catalog_stage.csv")
	n, err := Ingest(writeRaw(t, dir, cleanCatalog), stage)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	records := readCSV(t, stage)
	want := [][]string{
		{"id", "name", "price", "tags"},
		{"1", "mug", "9.50", `["kitchen"]`},
		{"2", "lamp, desk", "30", "[]"},
		{"3", "chair", "120", `["office","wood"]`},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("record %d = %v, want %v", i, records[i], want[i])
		}
	}
}

func TestIngest_MissingAndNullBecomeEmpty(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage.csv")
	if _, err := Ingest(writeRaw(t, dir, `[{"a": 1, "b": null}, {"c": true}]`), stage); err != nil {
		t.Fatal(err)
	}
	records := readCSV(t, stage)
	if strings.Join(records[1], "|") != "1||" || strings.Join(records[2], "|") != "||true" {
		t.Errorf("records = %v", records)
	}
}

func TestIngest_Errors(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage.csv")
	if _, err := Ingest(filepath.Join(dir, "missing.json"), stage); err == nil {
		t.Error("missing raw file should fail")
	}
	if _, err := Ingest(writeRaw(t, dir, `{"not": "an array"}`), stage); err == nil {
		t.Error("non-array JSON should fail")
	}
	if _, err := Ingest(writeRaw(t, dir, `[]`), stage); err == nil {
		t.Error("catalog without fields should fail")
	}
	if _, err := os.Stat(stage); !os.IsNotExist(err) {
		t.Error("stage file should not be written on failure")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage.csv")
	content := "id,name,price\n1,mug,9\n2,,30\n3,chair,\n"
	if err := os.WriteFile(stage, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Validate(stage)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Cells) != 2 {
		t.Fatalf("cells = %+v", verr.Cells)
	}
	if verr.Cells[0] != (NullCell{Row: 2, Column: "name"}) || verr.Cells[1] != (NullCell{Row: 3, Column: "price"}) {
		t.Errorf("cells = %+v", verr.Cells)
	}
	if !strings.Contains(err.Error(), "found 2 null values") {
		t.Errorf("message = %q", err.Error())
	}

	if err := os.WriteFile(stage, []byte("id,name\n1,mug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if n, err := Validate(stage); err != nil || n != 1 {
		t.Errorf("clean stage: n=%d err=%v", n, err)
	}
}

type catalogRow struct {
	ID    string `parquet:"id"`
	Name  string `parquet:"name"`
	Price string `parquet:"price"`
}

func TestStore_WritesStringParquet(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage.csv")
	// Header deliberately out of schema order.
	content := "price,id,name\n9,1,mug\n30,2,lamp\n"
	if err := os.WriteFile(stage, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	final := filepath.Join(dir, "out", "catalog_final.parquet")
	n, err := Store(stage, final)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d", n)
	}

	f, err := os.Open(final)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	rows, err := parquet.Read[catalogRow](f, stat.Size())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("read %d rows", len(rows))
	}
	if rows[0] != (catalogRow{ID: "1", Name: "mug", Price: "9"}) || rows[1] != (catalogRow{ID: "2", Name: "lamp", Price: "30"}) {
		t.Errorf("rows = %+v", rows)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "out", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestStore_RejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage.csv")
	if err := os.WriteFile(stage, []byte("id,id\n1,2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Store(stage, filepath.Join(dir, "final.parquet")); err == nil {
		t.Error("duplicate column should fail")
	}
}

func newLedger(t *testing.T) *storage.SQLiteLedger {
	t.Helper()
	ledger, err := storage.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func testPaths(t *testing.T, raw string) Paths {
	t.Helper()
	dir := t.TempDir()
	return Paths{
		Raw:   writeRaw(t, dir, raw),
		Stage: filepath.Join(dir, "catalog_stage.csv"),
		Final: filepath.Join(dir, "catalog_final.parquet"),
	}
}

func TestPipeline_Run(t *testing.T) {
	paths := testPaths(t, cleanCatalog)
	ledger := newLedger(t)
	p := NewPipeline(paths, WithLedger(ledger), WithRetryDelay(0))
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(paths.Final); err != nil {
		t.Errorf("final parquet missing: %v", err)
	}
	runs, err := ledger.ListCatalogRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusSucceeded || runs[0].Rows != 3 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestPipeline_ValidationFailureRetriesAndSkipsStore(t *testing.T) {
	paths := testPaths(t, `[{"id": "1", "name": null}]`)
	ledger := newLedger(t)
	p := NewPipeline(paths, WithLedger(ledger), WithRetries(1), WithRetryDelay(0))
	err := p.Run(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepValidate {
		t.Errorf("expected validate step error, got %v", err)
	}
	if _, err := os.Stat(paths.Final); !os.IsNotExist(err) {
		t.Error("store must not run after failed validation")
	}
	runs, err := ledger.ListCatalogRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(runs))
	}
	for _, r := range runs {
		if r.Status != models.RunStatusFailed || r.Step != StepValidate {
			t.Errorf("run = %+v", r)
		}
	}
}

func TestPipeline_RetryDelayHonorsCancel(t *testing.T) {
	paths := testPaths(t, `[{"id": null}]`)
	p := NewPipeline(paths, WithRetries(3), WithRetryDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPipeline_Schedule(t *testing.T) {
	paths := testPaths(t, cleanCatalog)
	ledger := newLedger(t)
	p := NewPipeline(paths, WithLedger(ledger), WithInterval(30*time.Millisecond), WithRetryDelay(0))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Schedule(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := ledger.ListCatalogRuns(context.Background(), 10)
		if err == nil && len(runs) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Schedule returned %v", err)
	}
	runs, err := ledger.ListCatalogRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) < 2 {
		t.Errorf("expected at least 2 scheduled runs, got %d", len(runs))
	}
}
