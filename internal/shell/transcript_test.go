package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/pkg/obliquetypes"
)

func TestTranscriptSource_FetchHistory(t *testing.T) {
	src := NewTranscriptSource()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	// Appended out of order on purpose.
	require.NoError(t, src.Append(obliquetypes.ChatEntry{AuthorName: "b", Text: "2", Timestamp: base.Add(2 * time.Minute)}))
	require.NoError(t, src.Append(obliquetypes.ChatEntry{AuthorName: "a", Text: "1", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, src.Append(obliquetypes.ChatEntry{AuthorName: "c", Text: "3", Timestamp: base.Add(3 * time.Minute)}))

	got, err := src.FetchHistory(context.Background(), base.Add(3*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Text)
	assert.Equal(t, "2", got[1].Text)

	got, err = src.FetchHistory(context.Background(), base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Text)
	assert.Equal(t, "3", got[1].Text)

	assert.Equal(t, 3, src.Len())
	assert.Len(t, src.Tail(1), 1)
	assert.Len(t, src.Tail(0), 3)
}

func TestTranscriptSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTranscriptSource().FetchHistory(ctx, time.Now(), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadTranscript_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonl")

	src, err := LoadTranscript(path)
	require.NoError(t, err)
	assert.Zero(t, src.Len())

	require.NoError(t, src.Append(obliquetypes.ChatEntry{AuthorName: "alice", Text: "hi"}))
	require.NoError(t, src.Append(obliquetypes.ChatEntry{AuthorName: "bob", Text: "yo"}))

	reloaded, err := LoadTranscript(path)
	require.NoError(t, err)
	entries := reloaded.Tail(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].AuthorName)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLoadTranscript_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"author\":\"a\",\"text\":\"x\"}\nnot json\n"), 0o600))

	_, err := LoadTranscript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
