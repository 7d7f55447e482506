package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train_embeddings.parquet")
	val := filepath.Join(dir, "val_embeddings.parquet")
	if err := os.WriteFile(train, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(val, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single artifact", []string{train}, 5},
		{"two artifacts", []string{train, val}, 8},
		{"missing artifact is skipped", []string{train, filepath.Join(dir, "test_embeddings.parquet")}, 5},
		{"empty path is skipped", []string{"", val}, 3},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}

	if _, err := DiskUsageBytes(dir); err == nil {
		t.Error("directory should be rejected")
	}
}

func TestLedgerFiles(t *testing.T) {
	got := LedgerFiles("/data/ledger.db")
	want := []string{"/data/ledger.db", "/data/ledger.db-wal", "/data/ledger.db-shm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LedgerFiles() = %v, want %v", got, want)
	}
	if LedgerFiles("") != nil {
		t.Error("empty path should list nothing")
	}
}

func TestSQLiteLedger_FilesCountedOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "ledger.db")
	l, err := NewSQLiteLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	size, err := DiskUsageBytes(l.Files()...)
	if err != nil {
		t.Fatal(err)
	}
	if size == 0 {
		t.Error("ledger database should occupy disk space")
	}
}
