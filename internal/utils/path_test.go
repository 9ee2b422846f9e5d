package utils

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeComponents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Simple", "dir/file.txt", []string{"dir", "file.txt"}},
		{"Backslashes", `a\b\c.mkv`, []string{"a", "b", "c.mkv"}},
		{"Traversal dropped", "../../etc/passwd", []string{"etc", "passwd"}},
		{"Dots and empties", "./a//./b", []string{"a", "b"}},
		{"Unsafe characters", "my<file>:name?.txt", []string{"myfilename.txt"}},
		{"Only unsafe", "***", []string{"file"}},
		{"Empty", "", []string{"file"}},
		{"Trimmed", "  spaced  /x", []string{"spaced", "x"}},
		{"Allowed punctuation", "[Group] Show (2024) #1 @x !y %z +w =v & u", []string{"[Group] Show (2024) #1 @x !y %z +w =v & u"}},
		{"Unicode letters", "Фильм/映画.mp4", []string{"Фильм", "映画.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeComponents(tt.in))
		})
	}
}

func TestSanitizeComponents_Limits(t *testing.T) {
	long := strings.Repeat("x", 400)
	got := SanitizeComponents(long)
	require.Len(t, got, 1)
	assert.Len(t, got[0], MaxComponentLength)

	deep := strings.Repeat("d/", 150)
	assert.Len(t, SanitizeComponents(deep), MaxPathDepth)
}

func TestResolveSavePath(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "srv", "downloads")

	got, err := ResolveSavePath("movies", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "movies"), got)

	abs := filepath.Join(string(filepath.Separator), "data", "torrents")
	got, err = ResolveSavePath(abs+string(filepath.Separator), base)
	require.NoError(t, err)
	assert.Equal(t, abs, got)

	_, err = ResolveSavePath("../escape", base)
	assert.Error(t, err)
}
