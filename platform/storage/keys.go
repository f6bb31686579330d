package storage

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by GetObject for a missing key so
// callers can tell "lost artifact" from a transport failure.
var ErrObjectNotFound = errors.New("object not found")

// Key layout for pipeline artifacts. Part numbering in keys is 1-based
// to match the original upload convention; partIndex stays 0-based.
func PartPDFKey(itemID string, partIndex int) string {
	return fmt.Sprintf("pdf-parts/%s/part_%d.pdf", itemID, partIndex+1)
}

func PartMarkdownKey(itemID string, partIndex int) string {
	return fmt.Sprintf("markdown-parts/%s/part_%d.md", itemID, partIndex+1)
}
