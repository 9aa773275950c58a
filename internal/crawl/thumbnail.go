package crawl

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// saveThumbnail writes a raster under dir, named by the hash of the record URL
func saveThumbnail(dir, recordURL string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	sum := sha1.Sum([]byte(recordURL))
	path := filepath.Join(dir, hex.EncodeToString(sum[:])+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return path, nil
}
