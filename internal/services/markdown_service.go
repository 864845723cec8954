package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"oblique/internal/logger"
)

// DefaultWordWrap is the wrap width for rendered candidate pages.
const DefaultWordWrap = 80

// MarkdownService renders candidate text for the terminal using Glamour.
type MarkdownService struct {
	mu          sync.Mutex
	initialized bool
	style       string
	wordWrap    int
	renderer    *glamour.TermRenderer
}

// NewMarkdownService creates a MarkdownService. An empty style selects
// automatic detection; "notty" and "ascii" produce plain output.
func NewMarkdownService(style string) *MarkdownService {
	if style == "" {
		style = "auto"
	}
	return &MarkdownService{style: style, wordWrap: DefaultWordWrap}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize builds the renderer.
func (m *MarkdownService) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	renderer, err := m.newRenderer(m.wordWrap)
	if err != nil {
		return err
	}
	m.renderer = renderer
	m.initialized = true

	logger.Debug("MarkdownService initialized", "style", m.style)
	return nil
}

func (m *MarkdownService) newRenderer(width int) (*glamour.TermRenderer, error) {
	styleOpt := glamour.WithAutoStyle()
	if m.style != "auto" {
		styleOpt = glamour.WithStandardStyle(m.style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer, nil
}

// Render renders text to ANSI terminal output. Blank text renders as
// nothing.
func (m *MarkdownService) Render(text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return "", fmt.Errorf("markdown service not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	rendered, err := m.renderer.Render(text)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return rendered, nil
}

// SetWordWrap rebuilds the renderer with a new wrap width.
func (m *MarkdownService) SetWordWrap(width int) error {
	if width <= 0 {
		return fmt.Errorf("word wrap width must be positive, got %d", width)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	renderer, err := m.newRenderer(width)
	if err != nil {
		return err
	}
	m.renderer = renderer
	m.wordWrap = width
	m.initialized = true
	return nil
}
