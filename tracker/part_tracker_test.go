package tracker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjixiang/aikb/models"
)

func allIndices(snap *ProcessingStatusInfo) map[int]int {
	counts := make(map[int]int)
	for _, set := range [][]int{snap.CompletedParts, snap.FailedParts, snap.ProcessingParts, snap.PendingParts} {
		for _, i := range set {
			counts[i]++
		}
	}
	return counts
}

// Every part index must appear in exactly one of the four status sets.
func assertPartition(t *testing.T, snap *ProcessingStatusInfo) {
	t.Helper()
	counts := allIndices(snap)
	assert.Len(t, counts, snap.TotalParts)
	for i := 0; i < snap.TotalParts; i++ {
		assert.Equal(t, 1, counts[i], "part %d appears %d times", i, counts[i])
	}
}

func TestPartTracker_Initialize(t *testing.T) {
	tr := NewPartTracker(3)

	require.NoError(t, tr.Initialize("doc-1", 4))

	snap := tr.Snapshot("doc-1")
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.TotalParts)
	assert.Equal(t, []int{0, 1, 2, 3}, snap.PendingParts)
	assert.Empty(t, snap.CompletedParts)
	assert.Equal(t, models.StatusProcessing, snap.Status())
	assertPartition(t, snap)

	assert.Error(t, tr.Initialize("doc-1", 3), "re-initialize with different shape must fail")
	assert.NoError(t, tr.Initialize("doc-1", 4), "replayed initialize with same shape is a no-op")
	assert.Error(t, tr.Initialize("doc-2", 0))
}

func TestPartTracker_StatusTransitions(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 3))

	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusProcessing, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusCompleted, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 1, models.StatusProcessing, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 2, models.StatusFailed, "convert timeout"))

	snap := tr.Snapshot("doc-1")
	assert.Equal(t, []int{0}, snap.CompletedParts)
	assert.Equal(t, []int{1}, snap.ProcessingParts)
	assert.Equal(t, []int{2}, snap.FailedParts)
	assertPartition(t, snap)
	// part 2 still has retry budget, so the aggregate is not failed yet
	assert.Equal(t, models.StatusProcessing, snap.Status())
	assert.Equal(t, []int{2}, tr.FailedParts("doc-1"))

	// failed parts re-enter processing when a retry is consumed
	require.NoError(t, tr.RecordPartStatus("doc-1", 2, models.StatusProcessing, ""))
	part, err := tr.PartStatus("doc-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, part.RetryCount)
	assert.Equal(t, models.StatusProcessing, part.Status)
	assertPartition(t, tr.Snapshot("doc-1"))
}

func TestPartTracker_StatusDuringRetries(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 3))

	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusCompleted, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 2, models.StatusCompleted, ""))

	// a first failure leaves the retry budget untouched, so the item is
	// still in flight, not failed
	require.NoError(t, tr.RecordPartStatus("doc-1", 1, models.StatusFailed, "convert timeout"))
	snap := tr.Snapshot("doc-1")
	assert.Equal(t, []int{1}, snap.FailedParts)
	assert.Empty(t, snap.ExhaustedParts)
	assert.Equal(t, models.StatusProcessing, snap.Status())

	// burn through the budget: each retry re-enters processing, fails again
	for retry := 0; retry < 3; retry++ {
		require.NoError(t, tr.RecordPartStatus("doc-1", 1, models.StatusProcessing, ""))
		require.NoError(t, tr.RecordPartStatus("doc-1", 1, models.StatusFailed, "convert timeout"))
	}

	snap = tr.Snapshot("doc-1")
	assert.Equal(t, []int{1}, snap.ExhaustedParts)
	assert.Equal(t, models.StatusFailed, snap.Status())
	assertPartition(t, snap)
}

func TestPartTracker_MarkPartExhausted(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 2))

	// a permanent failure never consumed a retry, so only the explicit
	// mark can turn the aggregate failed
	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusFailed, "rejected input"))
	assert.Equal(t, models.StatusProcessing, tr.Snapshot("doc-1").Status())

	require.NoError(t, tr.MarkPartExhausted("doc-1", 0))
	snap := tr.Snapshot("doc-1")
	assert.Equal(t, []int{0}, snap.ExhaustedParts)
	assert.Equal(t, models.StatusFailed, snap.Status())

	assert.ErrorIs(t, tr.MarkPartExhausted("missing", 0), ErrItemNotTracked)
	assert.Error(t, tr.MarkPartExhausted("doc-1", 5))
}

func TestPartTracker_ReleaseMerge(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 2))
	for i := 0; i < 2; i++ {
		require.NoError(t, tr.RecordPartStatus("doc-1", i, models.StatusCompleted, ""))
	}

	require.True(t, tr.TryClaimMerge("doc-1"))
	assert.False(t, tr.TryClaimMerge("doc-1"))

	// a released claim goes back up for grabs, once
	tr.ReleaseMerge("doc-1")
	assert.True(t, tr.TryClaimMerge("doc-1"))
	assert.False(t, tr.TryClaimMerge("doc-1"))

	tr.ReleaseMerge("missing")
}

func TestPartTracker_ReplayIsIdempotent(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 2))

	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusProcessing, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusCompleted, ""))

	// a redelivered completion and a stale processing record change nothing
	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusCompleted, ""))
	require.NoError(t, tr.RecordPartStatus("doc-1", 0, models.StatusProcessing, ""))

	snap := tr.Snapshot("doc-1")
	assert.Equal(t, []int{0}, snap.CompletedParts)
	assert.Equal(t, []int{1}, snap.PendingParts)
	assertPartition(t, snap)
}

func TestPartTracker_RecordErrors(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 2))

	assert.ErrorIs(t, tr.RecordPartStatus("missing", 0, models.StatusCompleted, ""), ErrItemNotTracked)
	assert.Error(t, tr.RecordPartStatus("doc-1", 2, models.StatusCompleted, ""))
	assert.Error(t, tr.RecordPartStatus("doc-1", -1, models.StatusCompleted, ""))
}

func TestPartTracker_TryClaimMerge(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 3))

	assert.False(t, tr.TryClaimMerge("doc-1"), "incomplete item must not be claimable")

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordPartStatus("doc-1", i, models.StatusCompleted, ""))
	}
	require.True(t, tr.IsComplete("doc-1"))

	assert.True(t, tr.TryClaimMerge("doc-1"))
	assert.False(t, tr.TryClaimMerge("doc-1"), "second claim must lose")
}

func TestPartTracker_TryClaimMerge_Concurrent(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 8))
	for i := 0; i < 8; i++ {
		require.NoError(t, tr.RecordPartStatus("doc-1", i, models.StatusCompleted, ""))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryClaimMerge("doc-1") {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claims, "exactly one racer may claim the merge")
}

func TestPartTracker_ConcurrentRecording(t *testing.T) {
	tr := NewPartTracker(3)
	const docs = 10
	const parts = 20

	for d := 0; d < docs; d++ {
		require.NoError(t, tr.Initialize(fmt.Sprintf("doc-%d", d), parts))
	}

	var wg sync.WaitGroup
	for d := 0; d < docs; d++ {
		for p := 0; p < parts; p++ {
			wg.Add(1)
			go func(d, p int) {
				defer wg.Done()
				id := fmt.Sprintf("doc-%d", d)
				_ = tr.RecordPartStatus(id, p, models.StatusProcessing, "")
				_ = tr.RecordPartStatus(id, p, models.StatusCompleted, "")
			}(d, p)
		}
	}
	wg.Wait()

	for d := 0; d < docs; d++ {
		id := fmt.Sprintf("doc-%d", d)
		snap := tr.Snapshot(id)
		require.NotNil(t, snap)
		assert.Len(t, snap.CompletedParts, parts)
		assertPartition(t, snap)
		assert.True(t, tr.IsComplete(id))
	}
}

func TestPartTracker_Cleanup(t *testing.T) {
	tr := NewPartTracker(3)
	require.NoError(t, tr.Initialize("doc-1", 2))

	tr.Cleanup("doc-1")
	assert.Nil(t, tr.Snapshot("doc-1"))
	assert.False(t, tr.IsComplete("doc-1"))
	assert.ErrorIs(t, tr.RecordPartStatus("doc-1", 0, models.StatusCompleted, ""), ErrItemNotTracked)

	// the id can be tracked again after cleanup
	assert.NoError(t, tr.Initialize("doc-1", 5))
}
