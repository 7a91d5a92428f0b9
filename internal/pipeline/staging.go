package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StagingKey names the staged copy of an upload. It depends on the batch,
// the position in the batch and the content, never on the user-supplied name
// alone, so equal filenames cannot collide.
func StagingKey(batchID string, index int, file SourceFile) string {
	ext := strings.ToLower(filepath.Ext(file.Name))
	sum := strconv.FormatUint(xxhash.Sum64(file.Data), 16)
	return filepath.Join(sanitizePathToken(batchID), fmt.Sprintf("%d-%s%s", index, sum, sanitizeExt(ext)))
}

func stage(dir, key string, data []byte) (string, error) {
	full := filepath.Join(dir, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write staging file: %w", err)
	}
	return full, nil
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	return "." + sanitizePathToken(strings.TrimPrefix(ext, "."))
}
