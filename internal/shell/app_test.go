package shell

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/internal/agent"
	"oblique/internal/completion"
	"oblique/internal/services"
	"oblique/pkg/obliquetypes"
)

type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []string
	requests []completion.Request
}

func (c *scriptedCompleter) Complete(_ context.Context, req completion.Request, _ obliquetypes.ModelProfile) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	out := make([]string, req.N)
	copy(out, c.replies)
	return out, nil
}

func (c *scriptedCompleter) Close() {}

func (c *scriptedCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ""
	}
	return c.requests[len(c.requests)-1].Prompt
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type appFixture struct {
	app       *App
	surface   *TerminalSurface
	source    *TranscriptSource
	completer *scriptedCompleter
	out       *syncBuffer
}

func newAppFixture(t *testing.T, replies ...string) *appFixture {
	t.Helper()
	out := &syncBuffer{}
	surface := NewTerminalSurface(out, nil)
	completer := &scriptedCompleter{replies: replies}

	svc := services.NewGenerationService(services.GenerationConfig{
		Profiles: map[string]obliquetypes.ModelProfile{
			"base": {Key: "base", Type: obliquetypes.ProfileBase, ModelID: "m", Endpoint: "http://x", MaxTokens: 600},
		},
		DefaultProfile: "base",
		Surface:        surface,
		NewCompleter:   func(obliquetypes.ModelProfile) agent.Completer { return completer },
		Candidates:     3,
	})
	require.NoError(t, svc.Initialize())
	t.Cleanup(svc.Shutdown)

	source := NewTranscriptSource()
	app := NewApp(AppConfig{
		Service:  svc,
		Surface:  surface,
		Source:   source,
		UserID:   "local",
		UserName: "me",
		Scope:    "terminal",
	})
	return &appFixture{app: app, surface: surface, source: source, completer: completer, out: out}
}

func (f *appFixture) start(t *testing.T, args ...string) string {
	t.Helper()
	handle, err := f.app.Obliqueme(context.Background(), args)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.surface.WaitFinal(ctx, handle))
	return handle
}

func TestApp_Say(t *testing.T) {
	f := newAppFixture(t)

	require.NoError(t, f.app.Say("alice: hi there"))
	require.NoError(t, f.app.Say("just me"))
	require.NoError(t, f.app.Say("note: time is 10:30"))
	assert.Error(t, f.app.Say("   "))

	entries := f.source.Tail(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].AuthorName)
	assert.Equal(t, "hi there", entries[0].Text)
	assert.Equal(t, "me", entries[1].AuthorName)
	assert.Equal(t, "note", entries[2].AuthorName)
	assert.Equal(t, "time is 10:30", entries[2].Text)
}

func TestApp_SessionLifecycle(t *testing.T) {
	f := newAppFixture(t, "alpha.", "beta. gamma", "delta")
	require.NoError(t, f.app.Say("alice: hi bob"))

	handle := f.start(t, "-n", "bob")
	assert.Equal(t, handle, f.app.Current())
	assert.Contains(t, f.completer.lastPrompt(), "<alice> hi bob\n<bob>")

	list := f.app.Sessions(40)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].Name)
	assert.Equal(t, 3, list[0].Page)
	assert.Equal(t, 3, list[0].Total)
	assert.True(t, list[0].Current)
	assert.Equal(t, "delta", list[0].Preview)

	text, err := f.app.Step(context.Background(), "", -1)
	require.NoError(t, err)
	assert.Equal(t, "beta. gamma", text)

	_, err = f.app.Step(context.Background(), "", 5)
	assert.ErrorIs(t, err, obliquetypes.ErrOutOfRange)

	text, err = f.app.Trim(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "beta.", text)

	diff, err := f.app.Diff("", 1, 2)
	require.NoError(t, err)
	plain := ansi.Strip(diff)
	assert.Contains(t, plain, "alpha")
	assert.Contains(t, plain, "beta")

	_, err = f.app.Diff("", 1, 9)
	assert.ErrorIs(t, err, obliquetypes.ErrOutOfRange)

	committed, err := f.app.Commit(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "beta.", committed)
	assert.Empty(t, f.app.Current())

	last := f.source.Tail(1)[0]
	assert.Equal(t, "bob "+obliquetypes.IdentityMarker, last.AuthorName)
	assert.Equal(t, "beta.", last.Text)

	err = f.app.Reroll(context.Background(), "")
	assert.ErrorIs(t, err, obliquetypes.ErrSessionNotFound)
}

func TestApp_ResolveByPrefix(t *testing.T) {
	f := newAppFixture(t, "one")
	older := f.start(t)
	newer := f.start(t)
	assert.Equal(t, newer, f.app.Current())

	_, err := f.app.Step(context.Background(), older[:8], 0)
	require.NoError(t, err)
	assert.Equal(t, older, f.app.Current())

	_, err = f.app.Step(context.Background(), "zzzz", 0)
	assert.ErrorIs(t, err, obliquetypes.ErrSessionNotFound)

	if older[0] == newer[0] {
		_, err = f.app.Step(context.Background(), older[:1], 0)
		assert.ErrorIs(t, err, ErrAmbiguousSession)
	}
}

func TestApp_DeleteAndCancel(t *testing.T) {
	f := newAppFixture(t, "one")

	deleted := f.start(t)
	require.NoError(t, f.app.Delete(context.Background(), ""))
	assert.Contains(t, f.out.String(), ShortHandle(deleted)+" removed")
	assert.Empty(t, f.app.Current())

	f.start(t)
	require.NoError(t, f.app.Cancel(context.Background(), ""))
	assert.Empty(t, f.app.Sessions(40))
}

func TestApp_Reroll(t *testing.T) {
	f := newAppFixture(t, "one")
	handle := f.start(t)

	require.NoError(t, f.app.Reroll(context.Background(), ""))
	assert.Eventually(t, func() bool {
		list := f.app.Sessions(40)
		return len(list) == 1 && list[0].Total == 6
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.out.String(), services.RegeneratingPlaceholder)
	assert.Equal(t, handle, f.app.Current())
}

func TestApp_InputKeyword(t *testing.T) {
	f := newAppFixture(t, "one")

	require.NoError(t, f.app.Input(context.Background(), "hello"))
	require.NoError(t, f.app.Input(context.Background(), "  "))
	require.NoError(t, f.app.Input(context.Background(), "OBLIQUEME -n bob"))

	assert.NotEmpty(t, f.app.Current())
	assert.Equal(t, 1, f.source.Len())
}

func TestApp_Dispatch(t *testing.T) {
	f := newAppFixture(t, "one")
	ctx := context.Background()

	_, err := f.app.Dispatch(ctx, "bogus", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	out, err := f.app.Dispatch(ctx, "sessions", nil)
	require.NoError(t, err)
	assert.Equal(t, "no sessions", out)

	_, err = f.app.Dispatch(ctx, "say", []string{"alice:", "hello", "world"})
	require.NoError(t, err)
	out, err = f.app.Dispatch(ctx, "history", []string{"5"})
	require.NoError(t, err)
	assert.Contains(t, out, "alice: hello world")

	_, err = f.app.Dispatch(ctx, "history", []string{"x"})
	assert.Error(t, err)
	_, err = f.app.Dispatch(ctx, "diff", []string{"1"})
	assert.Error(t, err)

	out, err = f.app.Dispatch(ctx, Keyword, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "started")
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, []string{
		"cancel", "commit", "delete", "diff", "history", "next",
		Keyword, "prev", "reroll", "say", "sessions", "trim",
	}, CommandNames())
}
