package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sergi/go-diff/diffmatchpatch"

	"oblique/internal/logger"
	"oblique/internal/services"
	"oblique/pkg/obliquetypes"
)

// ErrAmbiguousSession means a handle prefix matches more than one session.
var ErrAmbiguousSession = errors.New("ambiguous session prefix")

// AppConfig configures an App.
type AppConfig struct {
	Service  *services.GenerationService
	Surface  *TerminalSurface
	Source   *TranscriptSource
	UserID   string
	UserName string
	Scope    string
	// CopyOnCommit copies committed text to the system clipboard where one
	// is available.
	CopyOnCommit bool
}

// App implements the terminal actions for one local user.
type App struct {
	cfg AppConfig
	log *log.Logger

	mu      sync.Mutex
	current string
	clipOK  bool
}

// NewApp creates an App.
func NewApp(cfg AppConfig) *App {
	if cfg.Source == nil {
		cfg.Source = NewTranscriptSource()
	}
	a := &App{cfg: cfg, log: logger.NewStyledLogger("Shell")}
	if cfg.CopyOnCommit && clipboardAvailable {
		if err := initClipboard(); err != nil {
			a.log.Warn("clipboard unavailable", "error", err)
		} else {
			a.clipOK = true
		}
	}
	return a
}

// Input handles a chat line: the keyword starts a generation, anything else
// is added to the transcript.
func (a *App) Input(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	if strings.EqualFold(fields[0], Keyword) {
		_, err := a.Obliqueme(ctx, fields[1:])
		return err
	}
	return a.Say(line)
}

// Say appends a message. "name: text" speaks as name; otherwise the local
// user speaks.
func (a *App) Say(line string) error {
	author, text := a.cfg.UserName, strings.TrimSpace(line)
	if name, rest, ok := strings.Cut(text, ": "); ok && name != "" && !strings.ContainsAny(name, " \t") {
		author, text = name, strings.TrimSpace(rest)
	}
	if text == "" {
		return fmt.Errorf("nothing to say")
	}
	return a.cfg.Source.Append(obliquetypes.ChatEntry{AuthorName: author, Text: text})
}

// Obliqueme starts a session simulating the local user unless -n names
// someone else.
func (a *App) Obliqueme(ctx context.Context, args []string) (string, error) {
	opts, err := ParseKeywordOptions(args)
	if err != nil {
		return "", err
	}
	trigger := obliquetypes.MessageTrigger{
		Author:     a.cfg.UserID,
		AuthorName: a.cfg.UserName,
		ChannelID:  a.cfg.Scope,
		Content:    strings.TrimSpace(Keyword + " " + strings.Join(args, " ")),
		SentAt:     time.Now(),
	}
	handle, err := a.cfg.Service.Generate(ctx, trigger, opts.Parameters(a.cfg.UserName), a.cfg.Scope, a.cfg.Source)
	if err != nil {
		return "", err
	}
	a.setCurrent(handle)
	return handle, nil
}

// Reroll queues another generation for a session.
func (a *App) Reroll(ctx context.Context, ref string) error {
	handle, err := a.resolve(ref)
	if err != nil {
		return err
	}
	return a.cfg.Service.Reroll(ctx, handle, a.cfg.Source)
}

// Step moves a session cursor by delta.
func (a *App) Step(ctx context.Context, ref string, delta int) (string, error) {
	handle, err := a.resolve(ref)
	if err != nil {
		return "", err
	}
	return a.cfg.Service.Navigate(ctx, handle, delta)
}

// Trim cuts the current page of a session at its last sentence.
func (a *App) Trim(ctx context.Context, ref string) (string, error) {
	handle, err := a.resolve(ref)
	if err != nil {
		return "", err
	}
	return a.cfg.Service.Trim(ctx, handle)
}

// Commit ends a session and posts its current page to the transcript under
// the simulated name.
func (a *App) Commit(ctx context.Context, ref string) (string, error) {
	handle, err := a.resolve(ref)
	if err != nil {
		return "", err
	}
	gc, err := a.cfg.Service.Session(handle)
	if err != nil {
		return "", err
	}
	text, err := a.cfg.Service.Commit(ctx, handle)
	if err != nil {
		return "", err
	}

	author := gc.Parameters.DisplayName() + " " + obliquetypes.IdentityMarker
	if err := a.cfg.Source.Append(obliquetypes.ChatEntry{AuthorName: author, Text: text}); err != nil {
		return text, fmt.Errorf("failed to record committed text: %w", err)
	}
	if a.clipOK {
		if err := writeToClipboard(text); err != nil {
			a.log.Warn("clipboard write failed", "error", err)
		}
	}
	a.clearCurrent(handle)
	return text, nil
}

// Delete ends a session and removes its output.
func (a *App) Delete(ctx context.Context, ref string) error {
	handle, err := a.resolve(ref)
	if err != nil {
		return err
	}
	if err := a.cfg.Service.Delete(ctx, handle, a.cfg.UserID); err != nil {
		return err
	}
	a.clearCurrent(handle)
	return nil
}

// Cancel ends a session, discarding pending output.
func (a *App) Cancel(ctx context.Context, ref string) error {
	handle, err := a.resolve(ref)
	if err != nil {
		return err
	}
	if err := a.cfg.Service.Cancel(ctx, handle, a.cfg.UserID); err != nil {
		return err
	}
	a.clearCurrent(handle)
	return nil
}

// SessionSummary describes one live session.
type SessionSummary struct {
	Handle  string
	Name    string
	Page    int
	Total   int
	Current bool
	Preview string
}

// Sessions lists the local user's live sessions.
func (a *App) Sessions(previewWidth int) []SessionSummary {
	current := a.getCurrent()
	var out []SessionSummary
	for _, handle := range a.cfg.Service.Manager().SessionsByOwner(a.cfg.UserID) {
		gc, err := a.cfg.Service.Session(handle)
		if err != nil {
			continue
		}
		index, _, total := gc.Snapshot()
		out = append(out, SessionSummary{
			Handle:  handle,
			Name:    gc.Parameters.DisplayName(),
			Page:    index + 1,
			Total:   total,
			Current: handle == current,
			Preview: a.cfg.Surface.Preview(handle, previewWidth),
		})
	}
	return out
}

// Diff compares two pages (1-based) of a session.
func (a *App) Diff(ref string, from, to int) (string, error) {
	handle, err := a.resolve(ref)
	if err != nil {
		return "", err
	}
	gc, err := a.cfg.Service.Session(handle)
	if err != nil {
		return "", err
	}
	history := gc.History()
	if from < 1 || from > len(history) || to < 1 || to > len(history) {
		return "", fmt.Errorf("%w: pages %d and %d of %d", obliquetypes.ErrOutOfRange, from, to, len(history))
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(history[from-1], history[to-1], false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs), nil
}

// History renders the last n transcript entries.
func (a *App) History(n int) string {
	var b strings.Builder
	for _, e := range a.cfg.Source.Tail(n) {
		fmt.Fprintf(&b, "%s %s: %s\n", e.Timestamp.Format("15:04:05"), e.AuthorName, e.Text)
	}
	return b.String()
}

// Current returns the handle actions default to.
func (a *App) Current() string {
	return a.getCurrent()
}

// resolve maps "" to the current session and otherwise matches a unique
// handle prefix among the user's sessions.
func (a *App) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		current := a.getCurrent()
		if current == "" {
			return "", fmt.Errorf("%w: no current session", obliquetypes.ErrSessionNotFound)
		}
		return current, nil
	}

	var matches []string
	for _, handle := range a.cfg.Service.Manager().SessionsByOwner(a.cfg.UserID) {
		if strings.HasPrefix(handle, ref) {
			matches = append(matches, handle)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", obliquetypes.ErrSessionNotFound, ref)
	case 1:
		a.setCurrent(matches[0])
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousSession, ref)
	}
}

func (a *App) getCurrent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) setCurrent(handle string) {
	a.mu.Lock()
	a.current = handle
	a.mu.Unlock()
}

func (a *App) clearCurrent(handle string) {
	a.mu.Lock()
	if a.current == handle {
		a.current = ""
	}
	a.mu.Unlock()
}
