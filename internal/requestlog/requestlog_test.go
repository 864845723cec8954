package requestlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/pkg/obliquetypes"
)

type blockingWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	release chan struct{}
	closed  bool
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *blockingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	l := NewFileLogger(Options{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	assert.Equal(t, "request-log", l.Name())
	require.NoError(t, l.Initialize())

	for i := 1; i <= 3; i++ {
		l.Log(obliquetypes.RequestLogEvent{
			RequestKey: "20240101T000000.000000000",
			Time:       time.Unix(0, 0).UTC(),
			Attempt:    i,
			Model:      "m",
			Prompt:     "<alice> hi\n<carol>\n",
			Extracted:  []string{"hello"},
		})
	}
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var attempts []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev obliquetypes.RequestLogEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		assert.Equal(t, "<alice> hi\n<carol>\n", ev.Prompt)
		attempts = append(attempts, ev.Attempt)
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestFileLogger_NeverBlocks(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	l := newFileLogger(w, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			l.Log(obliquetypes.RequestLogEvent{Attempt: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a stalled writer")
	}
	assert.Positive(t, l.Dropped())

	close(w.release)
	require.NoError(t, l.Close())
	assert.True(t, w.closed)

	l.Log(obliquetypes.RequestLogEvent{})
}

func TestNop(t *testing.T) {
	var rl obliquetypes.RequestLogger = Nop{}
	rl.Log(obliquetypes.RequestLogEvent{})
}
