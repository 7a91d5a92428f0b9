package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BuildArchive zips the outputs of successful results in result order.
// Failed results contribute nothing. Entry names repeat only when two outputs
// share a name, in which case later ones get a numeric suffix.
func BuildArchive(results []Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]int)
	modified := time.Now()

	for _, res := range results {
		if !res.Success() {
			continue
		}
		header := &zip.FileHeader{
			Name:     uniqueEntryName(seen, res.OutputName),
			Method:   zip.Deflate,
			Modified: modified,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", header.Name, err)
		}
		if _, err := w.Write(res.data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", header.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueEntryName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n+1) + ext
	if _, taken := seen[candidate]; taken {
		return uniqueEntryName(seen, candidate)
	}
	seen[candidate] = 1
	return candidate
}
