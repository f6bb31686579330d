package services

import "strings"

// MergeSeparator joins part bodies in the merged document. Deterministic
// so a merged document can be split back into its parts.
const MergeSeparator = "\n\n---\n\n"

// MergeParts assembles per-part markdown in part-index order. The caller
// guarantees parts[i] belongs at index i.
func MergeParts(parts []string) string {
	return strings.Join(parts, MergeSeparator)
}

// ExtractSections pulls top-level and second-level headings out of a
// markdown document, for the table-of-contents API.
func ExtractSections(markdown string) []string {
	var sections []string
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title != "" {
				sections = append(sections, title)
			}
		}
	}
	return sections
}
