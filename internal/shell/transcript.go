package shell

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"oblique/pkg/obliquetypes"
)

// TranscriptSource is an in-memory channel history loaded from a JSON-lines
// file. When a path is set, appended entries are also written to it.
type TranscriptSource struct {
	mu      sync.RWMutex
	path    string
	entries []obliquetypes.ChatEntry
}

// NewTranscriptSource creates an empty transcript that is not persisted.
func NewTranscriptSource() *TranscriptSource {
	return &TranscriptSource{}
}

// LoadTranscript reads path if it exists. A missing file yields an empty
// transcript that will be created on the first append.
func LoadTranscript(path string) (*TranscriptSource, error) {
	t := &TranscriptSource{path: path}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry obliquetypes.ChatEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", line, err)
		}
		t.entries = append(t.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	t.sort()
	return t, nil
}

// Append adds an entry, stamping it with the current time when unset.
func (t *TranscriptSource) Append(entry obliquetypes.ChatEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	t.sort()

	if t.path == "" {
		return nil
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// FetchHistory returns up to limit entries older than before, oldest first.
func (t *TranscriptSource) FetchHistory(ctx context.Context, before time.Time, limit int) ([]obliquetypes.ChatEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	end := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Timestamp.Before(before)
	})
	start := 0
	if limit > 0 && end > limit {
		start = end - limit
	}
	return append([]obliquetypes.ChatEntry(nil), t.entries[start:end]...), nil
}

// Tail returns the last n entries.
func (t *TranscriptSource) Tail(n int) []obliquetypes.ChatEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := 0
	if n > 0 && len(t.entries) > n {
		start = len(t.entries) - n
	}
	return append([]obliquetypes.ChatEntry(nil), t.entries[start:]...)
}

// Len returns the number of entries.
func (t *TranscriptSource) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *TranscriptSource) sort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Timestamp.Before(t.entries[j].Timestamp)
	})
}
