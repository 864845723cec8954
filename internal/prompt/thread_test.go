package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/pkg/obliquetypes"
)

type staticSource struct {
	entries    []obliquetypes.ChatEntry
	err        error
	lastBefore time.Time
	lastLimit  int
}

func (s *staticSource) FetchHistory(_ context.Context, before time.Time, limit int) ([]obliquetypes.ChatEntry, error) {
	s.lastBefore = before
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	var out []obliquetypes.ChatEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !before.IsZero() && !e.Timestamp.Before(before) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestMergeThreadHistory(t *testing.T) {
	created := t0.Add(10 * time.Minute)
	parent := []obliquetypes.ChatEntry{
		entry("alice", "parent early", 1),
		entry("bob", "parent at creation", 10),
		entry("alice", "parent after thread", 12),
	}
	thread := []obliquetypes.ChatEntry{
		entry("carol", "thread second", 15),
		entry("dave", "thread first", 11),
	}

	merged := MergeThreadHistory(thread, parent, created, 0)

	var texts []string
	for _, e := range merged {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"parent early", "parent at creation", "thread first", "thread second"}, texts)

	limited := MergeThreadHistory(thread, parent, created, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "thread first", limited[0].Text)
	assert.Equal(t, "thread second", limited[1].Text)
}

func TestThreadHistorySource(t *testing.T) {
	created := t0.Add(10 * time.Minute)
	parent := &staticSource{entries: []obliquetypes.ChatEntry{
		entry("alice", "p1", 1),
		entry("bob", "p2", 2),
		entry("alice", "p3", 20),
	}}
	thread := &staticSource{entries: []obliquetypes.ChatEntry{
		entry("carol", "t1", 11),
	}}
	src := ThreadHistorySource{Thread: thread, Parent: parent, CreatedAt: created}

	got, err := src.FetchHistory(context.Background(), t0.Add(time.Hour), 3)
	require.NoError(t, err)

	assert.Equal(t, 2, parent.lastLimit, "parent only fills the remaining budget")
	assert.Equal(t, created, parent.lastBefore, "parent is bounded by thread creation")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"p1", "p2", "t1"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestThreadHistorySource_Errors(t *testing.T) {
	boom := errors.New("boom")
	src := ThreadHistorySource{Thread: &staticSource{err: boom}, Parent: &staticSource{}}
	_, err := src.FetchHistory(context.Background(), time.Time{}, 10)
	assert.ErrorIs(t, err, boom)

	src = ThreadHistorySource{Thread: &staticSource{}, Parent: &staticSource{err: boom}, CreatedAt: t0}
	_, err = src.FetchHistory(context.Background(), time.Time{}, 10)
	assert.ErrorIs(t, err, boom)
}
