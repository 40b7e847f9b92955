package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	matcher, err := NewMatcher(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		path string
		skip bool
	}{
		{".boxpeer", true},
		{".boxpeer/pins/ab/bafk", true},
		{".git", true},
		{"config.yaml", true},
		{".env", true},
		{".DS_Store", true},
		{"cover.png", false},
		{"videos/trailer.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.skip, matcher.Matches(tt.path), "path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	root := t.TempDir()
	rules := `
# drafts are never published
*.psd
drafts
!cover.psd
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(rules), 0644))

	matcher, err := NewMatcher(root)
	require.NoError(t, err)

	tests := []struct {
		path string
		skip bool
	}{
		{".boxpeer", true},
		{FileName, true},
		{"poster.psd", true},
		{"art/poster.psd", true},
		{"drafts", true},
		{"drafts/chapter1.pdf", true},
		{"book.pdf", false},
		{"cover.psd", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.skip, matcher.Matches(tt.path), "path: %s", tt.path)
		})
	}
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything"))
}
