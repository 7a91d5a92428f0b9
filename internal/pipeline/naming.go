package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputFilename builds {prefix}{name}_{w}x{h}.{ext}. The same inputs always
// produce the same name.
func OutputFilename(prefix, original string, width, height int, format string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := strings.ToLower(strings.TrimPrefix(format, "."))
	return fmt.Sprintf("%s%s_%dx%d.%s", sanitizeName(prefix), sanitizeName(stem), width, height, ext)
}

// sanitizeName keeps the name readable while dropping path separators and
// control characters.
func sanitizeName(in string) string {
	in = strings.TrimSpace(in)
	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return "_"
	}
	return out
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
