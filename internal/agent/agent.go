// Package agent serializes generation work for one owner and model. Each
// Agent owns an unbounded FIFO queue drained by a single consumer goroutine,
// so two generations for the same pair never overlap.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"oblique/internal/completion"
	"oblique/internal/logger"
	"oblique/internal/prompt"
	"oblique/internal/response"
	"oblique/pkg/obliquetypes"
)

// NoValidResponse is the single page delivered when every candidate failed.
const NoValidResponse = "No valid response generated. Please try again."

// State describes what the agent is doing.
type State string

// Agent states.
const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateShutdown   State = "shutdown"
)

// Completer requests candidate completions for a formatted prompt.
type Completer interface {
	Complete(ctx context.Context, req completion.Request, profile obliquetypes.ModelProfile) ([]string, error)
	Close()
}

// Result is one page delivered to a task callback.
type Result struct {
	Text       string
	Page       int
	TotalPages int
}

// Task is one queued generation.
type Task struct {
	Trigger obliquetypes.Trigger
	Params  obliquetypes.SessionParameters
	Source  obliquetypes.HistorySource
	// Before bounds the history fetch; zero means now.
	Before       time.Time
	HistoryLimit int
	Candidates   int
	MaxTokens    int
	// Callback runs on the consumer goroutine once per page, in page order.
	Callback func(ctx context.Context, result Result)
}

// Config configures an Agent.
type Config struct {
	Key       string
	Profile   obliquetypes.ModelProfile
	Completer Completer
	Formatter *prompt.Formatter
	Processor *response.Processor
}

// Agent runs queued tasks one at a time.
type Agent struct {
	key       string
	profile   obliquetypes.ModelProfile
	completer Completer
	formatter *prompt.Formatter
	processor *response.Processor
	log       *log.Logger

	mu         sync.Mutex
	queue      []Task
	state      State
	lastActive time.Time
	closed     bool

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates an Agent and starts its consumer goroutine.
func New(cfg Config) *Agent {
	if cfg.Formatter == nil {
		cfg.Formatter = prompt.NewFormatter(nil, 0)
	}
	if cfg.Processor == nil {
		cfg.Processor = response.NewProcessor()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		key:        cfg.Key,
		profile:    cfg.Profile,
		completer:  cfg.Completer,
		formatter:  cfg.Formatter,
		processor:  cfg.Processor,
		log:        logger.NewStyledLogger("Agent").With("agent", cfg.Key),
		state:      StateIdle,
		lastActive: time.Now(),
		notify:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go a.run()
	return a
}

// Key returns the owner and model key the agent serves.
func (a *Agent) Key() string {
	return a.key
}

// Enqueue appends task to the queue without blocking. It returns
// obliquetypes.ErrAgentClosed after Shutdown.
func (a *Agent) Enqueue(task Task) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return obliquetypes.ErrAgentClosed
	}
	a.queue = append(a.queue, task)
	a.lastActive = time.Now()
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
	return nil
}

// State reports the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Pending returns the number of queued tasks not yet started.
func (a *Agent) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// LastActive returns when a task was last enqueued or finished.
func (a *Agent) LastActive() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActive
}

// Idle reports whether the agent has no queued or running work and has
// been inactive for at least d.
func (a *Agent) Idle(d time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateIdle && len(a.queue) == 0 && time.Since(a.lastActive) >= d
}

// Shutdown cancels the consumer, waits for it to exit and closes the
// completer. Queued tasks are dropped. Calling it again is a no-op.
func (a *Agent) Shutdown() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		dropped := len(a.queue)
		a.queue = nil
		a.mu.Unlock()

		a.cancel()
		<-a.done

		a.mu.Lock()
		a.state = StateShutdown
		a.mu.Unlock()

		if a.completer != nil {
			a.completer.Close()
		}
		a.log.Debug("agent shut down", "dropped", dropped)
	})
}

func (a *Agent) run() {
	defer close(a.done)
	for {
		task, ok := a.next()
		if !ok {
			select {
			case <-a.ctx.Done():
				return
			case <-a.notify:
				continue
			}
		}
		if a.ctx.Err() != nil {
			return
		}

		a.setState(StateProcessing)
		if err := a.execute(task); err != nil {
			if errors.Is(err, context.Canceled) && a.ctx.Err() != nil {
				return
			}
			a.log.Error("task failed", "error", err)
		}
		a.mu.Lock()
		a.state = StateIdle
		a.lastActive = time.Now()
		a.mu.Unlock()
	}
}

func (a *Agent) next() (Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return Task{}, false
	}
	task := a.queue[0]
	a.queue[0] = Task{}
	a.queue = a.queue[1:]
	return task, true
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// execute runs one task, converting a panic into an error.
func (a *Agent) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			a.log.Error("recovered panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return a.process(a.ctx, task)
}

func (a *Agent) process(ctx context.Context, task Task) error {
	author := ""
	if task.Trigger != nil {
		author = task.Trigger.AuthorDisplayName()
	}
	a.log.Debug("processing task", "author", author, "target", task.Params.DisplayName())

	pages, err := a.generate(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error("generation failed", "error", err)
		pages = nil
	}

	deliver := task.Callback
	if deliver == nil {
		deliver = func(context.Context, Result) {}
	}
	if len(pages) == 0 {
		deliver(ctx, Result{Text: NoValidResponse, Page: 1, TotalPages: 1})
		return nil
	}
	for i, text := range pages {
		deliver(ctx, Result{Text: text, Page: i + 1, TotalPages: len(pages)})
	}
	return nil
}

// generate runs the format, request and process pipeline and returns the
// valid candidates in order.
func (a *Agent) generate(ctx context.Context, task Task) ([]string, error) {
	var history []obliquetypes.ChatEntry
	if task.Source != nil {
		before := task.Before
		if before.IsZero() {
			before = time.Now()
		}
		entries, err := task.Source.FetchHistory(ctx, before, task.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history: %w", err)
		}
		history = entries
	}

	p := a.formatter.Format(history, task.Params, a.profile.Type)

	maxTokens := task.MaxTokens
	if maxTokens <= 0 || maxTokens > a.profile.MaxTokens {
		maxTokens = a.profile.MaxTokens
	}
	req := completion.Request{
		Prompt:      p.Text,
		MaxTokens:   maxTokens,
		Temperature: a.profile.Temperature(task.Params),
		N:           task.Candidates,
	}
	if a.profile.Type == obliquetypes.ProfileInstruct {
		req.Stop = p.StopSequences()
	}

	raw, err := a.completer.Complete(ctx, req, a.profile)
	if err != nil {
		return nil, err
	}

	stopsApplied := len(req.Stop) > 0
	var pages []string
	for i, r := range raw {
		text, err := a.processor.Process(r, task.Params, a.profile.Type, stopsApplied)
		if err != nil {
			a.log.Debug("candidate discarded", "candidate", i+1, "error", err)
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
