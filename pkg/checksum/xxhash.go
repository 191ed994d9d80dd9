package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// GetFileChecksum hashes the full content of a release file.
func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", filePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HeaderFingerprint hashes a release header irrespective of column case, so
// releases sharing a layout can be grouped.
func HeaderFingerprint(columns []string) string {
	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	digest := xxhash.New()
	digest.WriteString(strings.Join(normalized, ";"))

	return hex.EncodeToString(digest.Sum(nil))
}
