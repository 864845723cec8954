// Package requestlog records completion attempts as JSON lines in a
// size-rotated file.
package requestlog

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"oblique/internal/logger"
	"oblique/pkg/obliquetypes"
)

const defaultBuffer = 256

// Options configures a FileLogger.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Buffer is the number of events held while the writer catches up.
	Buffer int
}

// FileLogger writes events from a background goroutine so Log never blocks.
// Events that arrive while the buffer is full are dropped and counted.
type FileLogger struct {
	out     io.WriteCloser
	events  chan obliquetypes.RequestLogEvent
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

// NewFileLogger opens a rotating log at opts.Path.
func NewFileLogger(opts Options) *FileLogger {
	return newFileLogger(&lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
		LocalTime:  true,
	}, opts.Buffer)
}

func newFileLogger(out io.WriteCloser, buffer int) *FileLogger {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	l := &FileLogger{
		out:    out,
		events: make(chan obliquetypes.RequestLogEvent, buffer),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

// Name returns the service name "request-log" for registration.
func (l *FileLogger) Name() string {
	return "request-log"
}

// Initialize is a no-op; the writer starts in NewFileLogger.
func (l *FileLogger) Initialize() error {
	return nil
}

// Log queues event for writing.
func (l *FileLogger) Log(event obliquetypes.RequestLogEvent) {
	defer func() {
		// Log after Close sends on a closed channel.
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()
	select {
	case l.events <- event:
	default:
		if l.dropped.Add(1)%100 == 1 {
			logger.Warn("Request log buffer full, dropping events", "dropped", l.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded.
func (l *FileLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close flushes queued events and closes the file.
func (l *FileLogger) Close() error {
	var err error
	l.once.Do(func() {
		close(l.events)
		<-l.done
		err = l.out.Close()
	})
	return err
}

func (l *FileLogger) drain() {
	defer close(l.done)
	enc := json.NewEncoder(l.out)
	enc.SetEscapeHTML(false)
	for event := range l.events {
		if err := enc.Encode(event); err != nil {
			logger.Error("Failed to write request log event", "error", err)
		}
	}
}

// Nop discards every event.
type Nop struct{}

// Log implements obliquetypes.RequestLogger.
func (Nop) Log(obliquetypes.RequestLogEvent) {}
