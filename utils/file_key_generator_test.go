package utils

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileKeyGenerator_DateBased(t *testing.T) {
	gen := NewFileKeyGenerator(StrategyDateBased, "pdfs")

	key := gen.GenerateFileKey("My Paper (final).pdf", "")

	datePrefix := fmt.Sprintf("pdfs/%s/", time.Now().Format("2006/01/02"))
	assert.True(t, strings.HasPrefix(key, datePrefix), "got %q", key)
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotContains(t, key, " ")
	assert.NotContains(t, key, "(")

	other := gen.GenerateFileKey("My Paper (final).pdf", "")
	assert.NotEqual(t, key, other, "same filename must not collide")
}

func TestFileKeyGenerator_CleanFilename(t *testing.T) {
	gen := NewFileKeyGenerator(StrategyDateBased, "pdfs")

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{name: "spaces become underscores", filename: "a b c.pdf", want: "a_b_c.pdf"},
		{name: "dangerous chars stripped", filename: `re<po|rt?.pdf`, want: "report.pdf"},
		{name: "empty base falls back", filename: "???.pdf", want: "document.pdf"},
		{name: "collapsed separators", filename: "a--__--b.pdf", want: "a_b.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gen.cleanFilename(tt.filename))
		})
	}
}

func TestFileKeyGenerator_HashBasedKeysDiffer(t *testing.T) {
	gen := NewFileKeyGenerator(StrategyHashBased, "pdfs")

	a := gen.GenerateFileKey("doc.pdf", "user-1")
	b := gen.GenerateFileKey("doc.pdf", "user-1")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "pdfs/hash_"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
}
