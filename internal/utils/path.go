package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	MaxComponentLength = 255
	MaxPathDepth       = 100
	placeholderName    = "file"
)

// ResolveSavePath turns a user-supplied save path into an absolute folder.
// Absolute paths are cleaned and accepted. Relative paths are joined with
// baseDir and must stay inside it.
func ResolveSavePath(userPath string, baseDir string) (string, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(userPath))
	if filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}

	finalPath := filepath.Join(baseDir, cleanPath)
	rel, err := filepath.Rel(baseDir, finalPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: path outside download directory")
	}
	return finalPath, nil
}

// SanitizeComponents splits an engine-reported file path on both separator
// styles and returns display-safe components. Empty, "." and ".." segments
// are dropped, each component is filtered and capped, and depth is capped.
func SanitizeComponents(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "." || p == ".." {
			continue
		}
		if len(out) == MaxPathDepth {
			break
		}
		out = append(out, SanitizeComponent(p))
	}
	if len(out) == 0 {
		out = append(out, placeholderName)
	}
	return out
}

// SanitizeComponent keeps letters, digits and a small set of punctuation,
// caps the length and trims surrounding spaces.
func SanitizeComponent(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == MaxComponentLength {
			break
		}
		if IsSafeRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return placeholderName
	}
	return out
}

func IsSafeRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return strings.ContainsRune(" .-_()[]&#@!%+=", r)
}
