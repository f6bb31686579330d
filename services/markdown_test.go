package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeParts(t *testing.T) {
	parts := []string{"# Part one", "# Part two", "# Part three"}

	merged := MergeParts(parts)

	assert.Equal(t, "# Part one\n\n---\n\n# Part two\n\n---\n\n# Part three", merged)
	assert.Equal(t, parts, strings.Split(merged, MergeSeparator), "merge is reversible")

	assert.Equal(t, "solo", MergeParts([]string{"solo"}), "single part carries no separator")
	assert.Equal(t, "", MergeParts(nil))
}

func TestMergeParts_Deterministic(t *testing.T) {
	parts := []string{"a", "b", "c", "d"}
	first := MergeParts(parts)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, MergeParts(parts))
	}
}

func TestExtractSections(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     []string
	}{
		{
			name:     "top and second level headings",
			markdown: "# Title\n\ntext\n\n## Methods\n\nmore text\n\n## Results\n",
			want:     []string{"Title", "Methods", "Results"},
		},
		{
			name:     "deeper headings ignored",
			markdown: "# Title\n### Subsub\n#### Deeper\n## Kept\n",
			want:     []string{"Title", "Kept"},
		},
		{
			name:     "indented headings count",
			markdown: "  # Padded\ntext",
			want:     []string{"Padded"},
		},
		{
			name:     "hash without space is not a heading",
			markdown: "#tag\ntext\n#another",
			want:     nil,
		},
		{
			name:     "empty document",
			markdown: "",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSections(tt.markdown))
		})
	}
}
