package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/wjixiang/aikb/models"
)

// PDFSplitter does the physical page work: counting pages for the
// analysis decision and extracting page ranges for the coordinator.
// pdfcpu's API is file based, so each call round-trips through a temp
// directory.
type PDFSplitter struct{}

func NewPDFSplitter() *PDFSplitter {
	return &PDFSplitter{}
}

func (s *PDFSplitter) PageCount(pdf []byte) (int, error) {
	tempDir, err := os.MkdirTemp("", "aikb-analyze-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, pdf, 0o600); err != nil {
		return 0, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	pageCount, err := api.PageCountFile(sourcePath)
	if err != nil {
		return 0, models.NewPermanentError("analyze", "unreadable pdf", err)
	}
	return pageCount, nil
}

// ExtractRange returns a standalone PDF holding pages start..end
// (1-based, inclusive) of the source document.
func (s *PDFSplitter) ExtractRange(pdf []byte, startPage, endPage int) ([]byte, error) {
	if startPage < 1 || endPage < startPage {
		return nil, fmt.Errorf("invalid page range %d-%d", startPage, endPage)
	}

	tempDir, err := os.MkdirTemp("", "aikb-split-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp pdf: %w", err)
	}

	outPath := filepath.Join(tempDir, "part.pdf")
	selection := []string{fmt.Sprintf("%d-%d", startPage, endPage)}
	if err := api.TrimFile(sourcePath, outPath, selection, nil); err != nil {
		return nil, models.NewPermanentError("split",
			fmt.Sprintf("extract pages %d-%d", startPage, endPage), err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read split part: %w", err)
	}
	return data, nil
}

// PlanPageRanges divides pageCount pages into parts of at most
// splitSize pages. The last part absorbs the remainder.
func PlanPageRanges(pageCount, splitSize int) []models.PageRange {
	if pageCount < 1 || splitSize < 1 {
		return nil
	}
	totalParts := (pageCount + splitSize - 1) / splitSize
	ranges := make([]models.PageRange, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		start := i*splitSize + 1
		end := (i + 1) * splitSize
		if end > pageCount {
			end = pageCount
		}
		ranges = append(ranges, models.PageRange{
			PartIndex: i,
			StartPage: start,
			EndPage:   end,
		})
	}
	return ranges
}
