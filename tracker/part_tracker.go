package tracker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wjixiang/aikb/models"
)

// ErrItemNotTracked is returned when part status arrives for an item
// that was never initialized (or already cleaned up).
var ErrItemNotTracked = errors.New("item not tracked")

// PartStatusInfo is the per-part record inside an item's aggregate.
type PartStatusInfo struct {
	ItemID     string
	PartIndex  int
	TotalParts int
	Status     models.ProcessingStatus
	StartTime  *time.Time
	EndTime    *time.Time
	Error      string
	RetryCount int
	MaxRetries int
	Exhausted  bool
}

// ProcessingStatusInfo is a snapshot of an item's aggregate. The four
// index slices partition {0..TotalParts-1} exactly; ExhaustedParts is
// the subset of FailedParts with no retries left.
type ProcessingStatusInfo struct {
	ItemID          string
	TotalParts      int
	CompletedParts  []int
	FailedParts     []int
	ProcessingParts []int
	PendingParts    []int
	ExhaustedParts  []int
	Errors          []string
}

// Status derives the item-level status: completed iff every part
// completed; failed iff some part failed with no retries left;
// processing otherwise. A failed part whose retry is still in flight
// keeps the aggregate at processing.
func (s *ProcessingStatusInfo) Status() models.ProcessingStatus {
	if len(s.CompletedParts) == s.TotalParts {
		return models.StatusCompleted
	}
	if len(s.ExhaustedParts) > 0 {
		return models.StatusFailed
	}
	return models.StatusProcessing
}

// itemState is the mutable aggregate, owned by exactly one shard lock.
type itemState struct {
	itemID     string
	totalParts int
	parts      []*PartStatusInfo
	sets       map[models.ProcessingStatus]map[int]bool
	merged     bool
}

// PartTracker is the one piece of shared mutable state in the pipeline.
// Updates for the same item are linearized by a per-shard mutex; the
// "last completion also claims the merge" step is a single critical
// section, so at most one caller ever wins TryClaimMerge per item.
type PartTracker struct {
	maxRetries int
	shards     [trackerShards]trackerShard
}

const trackerShards = 32

type trackerShard struct {
	mu    sync.Mutex
	items map[string]*itemState
}

// NewPartTracker builds a tracker whose part records carry the given
// retry budget, keeping the aggregate view in step with the envelope
// retry counts. maxRetries <= 0 falls back to the default budget.
func NewPartTracker(maxRetries int) *PartTracker {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	t := &PartTracker{maxRetries: maxRetries}
	for i := range t.shards {
		t.shards[i].items = make(map[string]*itemState)
	}
	return t
}

func (t *PartTracker) shard(itemID string) *trackerShard {
	h := fnv32(itemID)
	return &t.shards[h%trackerShards]
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Initialize registers an item with totalParts pending parts. Calling it
// again for a live item keeps the existing state, so a redelivered
// analysis message cannot reset progress.
func (t *PartTracker) Initialize(itemID string, totalParts int) error {
	if totalParts < 1 {
		return fmt.Errorf("totalParts must be >= 1, got %d", totalParts)
	}
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if st, ok := sh.items[itemID]; ok {
		if st.totalParts != totalParts {
			return fmt.Errorf("item %s already tracked with %d parts", itemID, st.totalParts)
		}
		return nil
	}

	st := &itemState{
		itemID:     itemID,
		totalParts: totalParts,
		parts:      make([]*PartStatusInfo, totalParts),
		sets: map[models.ProcessingStatus]map[int]bool{
			models.StatusPending:    make(map[int]bool),
			models.StatusProcessing: make(map[int]bool),
			models.StatusCompleted:  make(map[int]bool),
			models.StatusFailed:     make(map[int]bool),
		},
	}
	for i := 0; i < totalParts; i++ {
		st.parts[i] = &PartStatusInfo{
			ItemID:     itemID,
			PartIndex:  i,
			TotalParts: totalParts,
			Status:     models.StatusPending,
			MaxRetries: t.maxRetries,
		}
		st.sets[models.StatusPending][i] = true
	}
	sh.items[itemID] = st
	return nil
}

// RecordPartStatus moves a part between the four disjoint sets.
// Recording a status the part already has is a no-op, which makes
// redelivered completion events safe to re-run.
func (t *PartTracker) RecordPartStatus(itemID string, partIndex int, status models.ProcessingStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid part status %q", status)
	}
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotTracked, itemID)
	}
	if partIndex < 0 || partIndex >= st.totalParts {
		return fmt.Errorf("part index %d out of range [0,%d)", partIndex, st.totalParts)
	}

	part := st.parts[partIndex]
	if part.Status == status {
		return nil
	}
	// a completed part stays completed; late failure events for it are
	// stale duplicates
	if part.Status == models.StatusCompleted {
		return nil
	}

	delete(st.sets[part.Status], partIndex)
	st.sets[status][partIndex] = true

	now := time.Now()
	switch status {
	case models.StatusProcessing:
		if part.StartTime == nil {
			part.StartTime = &now
		}
		if part.Status == models.StatusFailed {
			part.RetryCount++
		}
	case models.StatusCompleted:
		part.EndTime = &now
		part.Error = ""
	case models.StatusFailed:
		part.EndTime = &now
		part.Error = errMsg
	}
	part.Status = status
	return nil
}

// MarkPartExhausted records that a failed part will not be retried
// again, either because its budget is spent or because the error was
// permanent. The aggregate status turns failed once any part is
// exhausted.
func (t *PartTracker) MarkPartExhausted(itemID string, partIndex int) error {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotTracked, itemID)
	}
	if partIndex < 0 || partIndex >= st.totalParts {
		return fmt.Errorf("part index %d out of range [0,%d)", partIndex, st.totalParts)
	}
	st.parts[partIndex].Exhausted = true
	return nil
}

// IsComplete reports whether every part of the item has completed.
func (t *PartTracker) IsComplete(itemID string) bool {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return false
	}
	return len(st.sets[models.StatusCompleted]) == st.totalParts
}

// TryClaimMerge atomically checks "all parts completed" and claims the
// single merge slot. Exactly one caller gets true per item; every later
// call, including redeliveries, gets false.
func (t *PartTracker) TryClaimMerge(itemID string) bool {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return false
	}
	if st.merged || len(st.sets[models.StatusCompleted]) != st.totalParts {
		return false
	}
	st.merged = true
	return true
}

// ReleaseMerge gives the merge slot back so a later completion or a
// redelivery can claim it again. Used when the claimed merge request
// could not be published.
func (t *PartTracker) ReleaseMerge(itemID string) {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if st, ok := sh.items[itemID]; ok {
		st.merged = false
	}
}

// FailedParts returns the sorted indices currently in the failed set.
func (t *PartTracker) FailedParts(itemID string) []int {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return nil
	}
	return sortedIndices(st.sets[models.StatusFailed])
}

// Snapshot returns a copy of the item's aggregate, or nil if untracked.
func (t *PartTracker) Snapshot(itemID string) *ProcessingStatusInfo {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return nil
	}
	info := &ProcessingStatusInfo{
		ItemID:          itemID,
		TotalParts:      st.totalParts,
		CompletedParts:  sortedIndices(st.sets[models.StatusCompleted]),
		FailedParts:     sortedIndices(st.sets[models.StatusFailed]),
		ProcessingParts: sortedIndices(st.sets[models.StatusProcessing]),
		PendingParts:    sortedIndices(st.sets[models.StatusPending]),
	}
	for _, p := range st.parts {
		if p.Status == models.StatusFailed && (p.Exhausted || p.RetryCount >= p.MaxRetries) {
			info.ExhaustedParts = append(info.ExhaustedParts, p.PartIndex)
		}
		if p.Error != "" {
			info.Errors = append(info.Errors, fmt.Sprintf("part %d: %s", p.PartIndex, p.Error))
		}
	}
	return info
}

// PartStatus returns a copy of one part's record.
func (t *PartTracker) PartStatus(itemID string, partIndex int) (*PartStatusInfo, error) {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotTracked, itemID)
	}
	if partIndex < 0 || partIndex >= st.totalParts {
		return nil, fmt.Errorf("part index %d out of range [0,%d)", partIndex, st.totalParts)
	}
	cp := *st.parts[partIndex]
	return &cp, nil
}

// Cleanup drops the item's aggregate once its terminal outcome has been
// recorded elsewhere.
func (t *PartTracker) Cleanup(itemID string) {
	sh := t.shard(itemID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.items, itemID)
}

func sortedIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
