package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"oblique/internal/agent"
	"oblique/internal/completion"
	"oblique/internal/logger"
	"oblique/internal/prompt"
	"oblique/internal/response"
	"oblique/internal/session"
	"oblique/pkg/obliquetypes"
)

// Placeholder texts shown while a generation is queued.
const (
	GeneratingPlaceholder   = "Oblique: Generating..."
	RegeneratingPlaceholder = "Regenerating..."
)

// Defaults applied by NewGenerationService.
const (
	DefaultHistoryLimit      = 200
	DefaultMaxResponseTokens = 600
	DefaultCandidates        = 3
)

// Remover is implemented by rendering surfaces that can take down a
// session's output when it is deleted.
type Remover interface {
	RenderRemove(ctx context.Context, handle string) error
}

// CompleterFactory builds the completer owned by one agent.
type CompleterFactory func(profile obliquetypes.ModelProfile) agent.Completer

// GenerationConfig configures a GenerationService.
type GenerationConfig struct {
	Profiles       map[string]obliquetypes.ModelProfile
	DefaultProfile string
	Surface        obliquetypes.RenderSurface
	NewCompleter   CompleterFactory
	// Formatter is shared by all agents; nil uses a formatter without a
	// token budget.
	Formatter *prompt.Formatter

	HistoryLimit      int
	MaxResponseTokens int
	Candidates        int
	// IdleTimeout evicts agents with an empty queue that have been inactive
	// this long. Zero disables eviction.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// GenerationService owns the session registry and the per owner/model
// agents, and implements the UI actions on sessions.
type GenerationService struct {
	cfg       GenerationConfig
	manager   *session.Manager
	processor *response.Processor
	log       *log.Logger

	mu     sync.Mutex
	agents map[string]*agent.Agent

	initialized bool
	closed      bool
	cancelSweep context.CancelFunc
	sweepDone   chan struct{}
}

// NewGenerationService creates the service. Initialize starts agent
// eviction.
func NewGenerationService(cfg GenerationConfig) *GenerationService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.MaxResponseTokens <= 0 {
		cfg.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.Formatter == nil {
		cfg.Formatter = prompt.NewFormatter(nil, 0)
	}
	if cfg.SweepInterval <= 0 && cfg.IdleTimeout > 0 {
		cfg.SweepInterval = cfg.IdleTimeout / 2
		if cfg.SweepInterval < time.Second {
			cfg.SweepInterval = time.Second
		}
	}
	return &GenerationService{
		cfg:       cfg,
		manager:   session.NewManager(),
		processor: response.NewProcessor(),
		log:       logger.NewStyledLogger("Generation"),
		agents:    make(map[string]*agent.Agent),
	}
}

// Name returns the service name "generation" for registration.
func (s *GenerationService) Name() string {
	return "generation"
}

// Initialize validates the configuration and starts the eviction loop.
func (s *GenerationService) Initialize() error {
	logger.ServiceOperation("generation", "initialize", "starting")
	if s.cfg.Surface == nil {
		return fmt.Errorf("generation service requires a rendering surface")
	}
	if s.cfg.NewCompleter == nil {
		return fmt.Errorf("generation service requires a completer factory")
	}
	if _, err := s.Profile(""); err != nil {
		return fmt.Errorf("default profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.initialized = true
	if s.cfg.IdleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelSweep = cancel
		s.sweepDone = make(chan struct{})
		go s.sweepLoop(ctx)
	}
	logger.ServiceOperation("generation", "initialize", "completed")
	return nil
}

// Manager exposes the session registry.
func (s *GenerationService) Manager() *session.Manager {
	return s.manager
}

// Profile returns the profile for key, or the default profile for "".
func (s *GenerationService) Profile(key string) (obliquetypes.ModelProfile, error) {
	if key == "" {
		key = s.cfg.DefaultProfile
	}
	profile, ok := s.cfg.Profiles[key]
	if !ok {
		return obliquetypes.ModelProfile{}, fmt.Errorf("%w: %q", obliquetypes.ErrUnknownProfile, key)
	}
	return profile, nil
}

// Generate starts a session for trigger: it renders the placeholder,
// registers the session under the returned handle and queues the first
// generation.
func (s *GenerationService) Generate(ctx context.Context, trigger obliquetypes.Trigger, params obliquetypes.SessionParameters, scopeID string, source obliquetypes.HistorySource) (string, error) {
	profile, err := s.Profile(params.ModelKey)
	if err != nil {
		return "", err
	}
	params.ModelKey = profile.Key
	if params.TargetIdentity == "" {
		params.TargetIdentity = trigger.AuthorDisplayName()
	}

	gc := s.manager.CreateContext(trigger.AuthorID(), scopeID, params)
	if mt, ok := trigger.(obliquetypes.MessageTrigger); ok && !mt.SentAt.IsZero() {
		gc.HistoryBefore = mt.SentAt
	}

	handle, err := s.cfg.Surface.RenderInitial(ctx, params, GeneratingPlaceholder)
	if err != nil {
		return "", fmt.Errorf("failed to render placeholder: %w", err)
	}
	s.manager.RegisterMessage(gc, handle)

	if err := s.enqueue(gc, trigger, profile, source); err != nil {
		s.manager.RemoveContext(handle)
		return "", err
	}
	s.log.Info("generation queued", "session", handle, "owner", gc.OwnerID, "model", profile.Key)
	return handle, nil
}

// Reroll queues another generation for an existing session.
func (s *GenerationService) Reroll(ctx context.Context, sessionID string, source obliquetypes.HistorySource) error {
	gc, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	profile, err := s.Profile(gc.Parameters.ModelKey)
	if err != nil {
		return err
	}

	index, _, total := gc.Snapshot()
	page := index + 1
	if total == 0 {
		page = 0
	}
	if err := s.cfg.Surface.RenderUpdate(ctx, sessionID, RegeneratingPlaceholder, page, total); err != nil {
		s.log.Warn("failed to render reroll placeholder", "session", sessionID, "error", err)
	}

	trigger := obliquetypes.InteractionTrigger{UserID: gc.OwnerID, CustomID: "reroll"}
	return s.enqueue(gc, trigger, profile, source)
}

// Navigate moves the session cursor by delta and re-renders. An out of
// range target returns obliquetypes.ErrOutOfRange and changes nothing.
func (s *GenerationService) Navigate(ctx context.Context, sessionID string, delta int) (string, error) {
	gc, err := s.Session(sessionID)
	if err != nil {
		return "", err
	}
	text, ok := gc.Step(delta)
	if !ok {
		return "", fmt.Errorf("%w: step %+d from page %d of %d", obliquetypes.ErrOutOfRange, delta, gc.CurrentIndex()+1, gc.Len())
	}
	s.render(ctx, gc)
	return text, nil
}

// Trim cuts the current page at its last complete sentence and re-renders.
func (s *GenerationService) Trim(ctx context.Context, sessionID string) (string, error) {
	gc, err := s.Session(sessionID)
	if err != nil {
		return "", err
	}
	trimmed, ok := gc.UpdateCurrent(session.TrimText)
	if !ok {
		return "", fmt.Errorf("%w: nothing to trim", obliquetypes.ErrOutOfRange)
	}
	s.render(ctx, gc)
	return trimmed, nil
}

// Commit returns the current page as final output and ends the session.
func (s *GenerationService) Commit(_ context.Context, sessionID string) (string, error) {
	gc, err := s.Session(sessionID)
	if err != nil {
		return "", err
	}
	if gc.Len() == 0 {
		return "", fmt.Errorf("%w: nothing to commit", obliquetypes.ErrOutOfRange)
	}
	text := gc.CurrentContent()
	s.manager.RemoveContext(sessionID)
	s.log.Info("session committed", "session", sessionID, "owner", gc.OwnerID)
	return text, nil
}

// Delete ends the session and removes its output from the surface.
func (s *GenerationService) Delete(ctx context.Context, sessionID, requesterID string) error {
	if err := s.end(sessionID, requesterID); err != nil {
		return err
	}
	if remover, ok := s.cfg.Surface.(Remover); ok {
		if err := remover.RenderRemove(ctx, sessionID); err != nil {
			s.log.Warn("failed to remove session output", "session", sessionID, "error", err)
		}
	}
	return nil
}

// Cancel ends the session. Generations still queued for it finish but
// their output is discarded.
func (s *GenerationService) Cancel(_ context.Context, sessionID, requesterID string) error {
	return s.end(sessionID, requesterID)
}

func (s *GenerationService) end(sessionID, requesterID string) error {
	gc, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if gc.OwnerID != requesterID {
		return obliquetypes.ErrNotOwner
	}
	s.manager.RemoveContext(sessionID)
	s.log.Info("session ended", "session", sessionID, "owner", gc.OwnerID)
	return nil
}

// Session returns the live session registered under sessionID.
func (s *GenerationService) Session(sessionID string) (*session.GenerationContext, error) {
	gc, ok := s.manager.GetContext(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", obliquetypes.ErrSessionNotFound, sessionID)
	}
	return gc, nil
}

// AgentKeys returns the keys of the live agents.
func (s *GenerationService) AgentKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.agents))
	for k := range s.agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shutdown stops eviction and shuts down every agent.
func (s *GenerationService) Shutdown() {
	s.mu.Lock()
	cancel, done := s.cancelSweep, s.sweepDone
	s.cancelSweep = nil
	s.closed = true
	agents := s.agents
	s.agents = make(map[string]*agent.Agent)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, a := range agents {
		a.Shutdown()
	}
	logger.ServiceOperation("generation", "shutdown", "completed", "agents", len(agents))
}

func (s *GenerationService) enqueue(gc *session.GenerationContext, trigger obliquetypes.Trigger, profile obliquetypes.ModelProfile, source obliquetypes.HistorySource) error {
	task := agent.Task{
		Trigger:      trigger,
		Params:       gc.Parameters,
		Source:       source,
		Before:       gc.HistoryBefore,
		HistoryLimit: s.cfg.HistoryLimit,
		Candidates:   s.cfg.Candidates,
		MaxTokens:    s.cfg.MaxResponseTokens,
		Callback:     s.deliver(gc),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return obliquetypes.ErrAgentClosed
	}
	return s.agentLocked(gc.OwnerID, profile).Enqueue(task)
}

// deliver appends each page to the session and re-renders it. Pages for a
// session that has since ended are dropped.
func (s *GenerationService) deliver(gc *session.GenerationContext) func(context.Context, agent.Result) {
	return func(ctx context.Context, r agent.Result) {
		handle := gc.SessionID()
		if live, ok := s.manager.GetContext(handle); !ok || live != gc {
			s.log.Debug("dropping page for ended session", "session", handle, "page", r.Page)
			return
		}
		gc.AddGeneration(r.Text)
		if err := s.cfg.Surface.RenderUpdate(ctx, handle, r.Text, r.Page, r.TotalPages); err != nil {
			s.log.Warn("failed to render page", "session", handle, "page", r.Page, "error", err)
		}
	}
}

func (s *GenerationService) render(ctx context.Context, gc *session.GenerationContext) {
	index, content, total := gc.Snapshot()
	if err := s.cfg.Surface.RenderUpdate(ctx, gc.SessionID(), content, index+1, total); err != nil {
		s.log.Warn("failed to render session", "session", gc.SessionID(), "error", err)
	}
}

func agentKey(ownerID, modelKey string) string {
	return ownerID + "/" + modelKey
}

// agentLocked returns the agent for owner and profile, creating it on first
// use. The caller holds s.mu, which also keeps the sweep from evicting the
// agent before the caller's enqueue lands.
func (s *GenerationService) agentLocked(ownerID string, profile obliquetypes.ModelProfile) *agent.Agent {
	key := agentKey(ownerID, profile.Key)
	if a, ok := s.agents[key]; ok {
		return a
	}
	a := agent.New(agent.Config{
		Key:       key,
		Profile:   profile,
		Completer: s.cfg.NewCompleter(profile),
		Formatter: s.cfg.Formatter,
		Processor: s.processor,
	})
	s.agents[key] = a
	s.log.Debug("agent created", "agent", key)
	return a
}

// sweepLoop periodically evicts idle agents.
func (s *GenerationService) sweepLoop(ctx context.Context) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictIdleAgents()
		}
	}
}

func (s *GenerationService) evictIdleAgents() {
	s.mu.Lock()
	var idle []*agent.Agent
	for key, a := range s.agents {
		if a.Idle(s.cfg.IdleTimeout) {
			idle = append(idle, a)
			delete(s.agents, key)
		}
	}
	remaining := len(s.agents)
	s.mu.Unlock()

	for _, a := range idle {
		a.Shutdown()
	}
	if len(idle) > 0 {
		s.log.Info("evicted idle agents", "evicted", len(idle), "remaining", remaining)
	}
}

// ClientFactory returns a CompleterFactory that gives every agent its own
// completion client. All clients share cfg.Limiter. With debugHTTP each
// client logs its HTTP exchanges.
func ClientFactory(cfg completion.Config, debugHTTP bool) CompleterFactory {
	return func(profile obliquetypes.ModelProfile) agent.Completer {
		c := cfg
		if debugHTTP {
			c.HTTPClient = &http.Client{
				Timeout:   120 * time.Second,
				Transport: completion.NewDebugTransport(nil, logger.NewStyledLogger("HTTP").With("model", profile.Key)),
			}
		}
		return completion.NewClient(c)
	}
}
