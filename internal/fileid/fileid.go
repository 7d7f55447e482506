// Package fileid derives deterministic keys for image files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
)

const prefix = "img:"

// Fingerprint returns a stable key for the file at absolutePath in its current state.
// It changes whenever the file's size or modification time changes, so it can key
// cached embeddings across rebuilds of the same split.
func Fingerprint(absolutePath string, info os.FileInfo) string {
	normalized := filepath.Clean(absolutePath)
	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// FingerprintPath stats path and returns its Fingerprint.
func FingerprintPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return Fingerprint(abs, info), nil
}
