package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjixiang/aikb/models"
)

func TestPlanPageRanges(t *testing.T) {
	tests := []struct {
		name      string
		pageCount int
		splitSize int
		want      []models.PageRange
	}{
		{
			name:      "exact multiple",
			pageCount: 50,
			splitSize: 25,
			want: []models.PageRange{
				{PartIndex: 0, StartPage: 1, EndPage: 25},
				{PartIndex: 1, StartPage: 26, EndPage: 50},
			},
		},
		{
			name:      "remainder goes to last part",
			pageCount: 60,
			splitSize: 25,
			want: []models.PageRange{
				{PartIndex: 0, StartPage: 1, EndPage: 25},
				{PartIndex: 1, StartPage: 26, EndPage: 50},
				{PartIndex: 2, StartPage: 51, EndPage: 60},
			},
		},
		{
			name:      "single short part",
			pageCount: 10,
			splitSize: 25,
			want: []models.PageRange{
				{PartIndex: 0, StartPage: 1, EndPage: 10},
			},
		},
		{
			name:      "one page per part",
			pageCount: 3,
			splitSize: 1,
			want: []models.PageRange{
				{PartIndex: 0, StartPage: 1, EndPage: 1},
				{PartIndex: 1, StartPage: 2, EndPage: 2},
				{PartIndex: 2, StartPage: 3, EndPage: 3},
			},
		},
		{
			name:      "zero pages",
			pageCount: 0,
			splitSize: 25,
			want:      nil,
		},
		{
			name:      "invalid split size",
			pageCount: 10,
			splitSize: 0,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanPageRanges(tt.pageCount, tt.splitSize)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Ranges must cover every page exactly once, in order, whatever the
// inputs.
func TestPlanPageRanges_Coverage(t *testing.T) {
	for pageCount := 1; pageCount <= 300; pageCount += 7 {
		for _, splitSize := range []int{10, 25, 100} {
			ranges := PlanPageRanges(pageCount, splitSize)
			require.NotEmpty(t, ranges)

			next := 1
			for i, r := range ranges {
				require.Equal(t, i, r.PartIndex)
				require.Equal(t, next, r.StartPage,
					"pageCount=%d splitSize=%d part=%d", pageCount, splitSize, i)
				require.LessOrEqual(t, r.EndPage-r.StartPage+1, splitSize)
				next = r.EndPage + 1
			}
			require.Equal(t, pageCount+1, next)
		}
	}
}

func TestPDFSplitter_InvalidInput(t *testing.T) {
	s := NewPDFSplitter()

	_, err := s.PageCount([]byte("not a pdf"))
	require.Error(t, err)
	assert.False(t, models.IsTransient(err), "unreadable pdf is permanent")

	_, err = s.ExtractRange([]byte("%PDF-1.4"), 3, 2)
	assert.Error(t, err)
	_, err = s.ExtractRange([]byte("%PDF-1.4"), 0, 2)
	assert.Error(t, err)
}
