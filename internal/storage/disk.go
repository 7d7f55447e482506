package storage

import (
	"fmt"
	"os"
)

// DiskUsageBytes sums the sizes of the regular files at paths.
// Empty and missing paths count as zero. A directory is an error: feature artifacts and
// ledger files are single files, so a directory here means a misconfigured path.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.Mode().IsRegular() {
			return 0, fmt.Errorf("not a regular file: %s", p)
		}
		total += info.Size()
	}
	return total, nil
}

// LedgerFiles lists the files SQLite keeps for a WAL-mode database at dbPath.
func LedgerFiles(dbPath string) []string {
	if dbPath == "" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}
