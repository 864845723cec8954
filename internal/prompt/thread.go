package prompt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"oblique/pkg/obliquetypes"
)

// MergeThreadHistory merges a thread's history with its parent channel's.
// Parent entries after the thread was created are ignored; the merged result
// is ordered oldest first and keeps at most limit of the newest entries.
func MergeThreadHistory(thread, parent []obliquetypes.ChatEntry, threadCreatedAt time.Time, limit int) []obliquetypes.ChatEntry {
	merged := make([]obliquetypes.ChatEntry, 0, len(thread)+len(parent))
	merged = append(merged, thread...)
	for _, e := range parent {
		if e.Timestamp.After(threadCreatedAt) {
			continue
		}
		merged = append(merged, e)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// ThreadHistorySource reads a thread together with the parent channel it
// was started from.
type ThreadHistorySource struct {
	Thread    obliquetypes.HistorySource
	Parent    obliquetypes.HistorySource
	CreatedAt time.Time
}

// FetchHistory implements obliquetypes.HistorySource.
func (s ThreadHistorySource) FetchHistory(ctx context.Context, before time.Time, limit int) ([]obliquetypes.ChatEntry, error) {
	thread, err := s.Thread.FetchHistory(ctx, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread history: %w", err)
	}

	remaining := 0
	if limit > 0 {
		remaining = limit - len(thread)
	}
	if s.Parent == nil || (limit > 0 && remaining <= 0) {
		return MergeThreadHistory(thread, nil, s.CreatedAt, limit), nil
	}

	parentBefore := s.CreatedAt
	if !before.IsZero() && before.Before(parentBefore) {
		parentBefore = before
	}
	parent, err := s.Parent.FetchHistory(ctx, parentBefore, remaining)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parent history: %w", err)
	}

	return MergeThreadHistory(thread, parent, s.CreatedAt, limit), nil
}
