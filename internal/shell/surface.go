// Package shell is the terminal front end: a rendering surface that prints
// candidate pages, a transcript-backed history source and the interactive
// commands that drive generation sessions.
package shell

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"oblique/internal/services"
	"oblique/pkg/obliquetypes"
)

// page is the last content rendered for a session.
type page struct {
	name  string
	text  string
	page  int
	total int
	// finals counts generations whose last page has been rendered.
	finals int
}

// TerminalSurface renders sessions to a writer. Handles are random UUIDs.
type TerminalSurface struct {
	mu       sync.Mutex
	out      io.Writer
	markdown *services.MarkdownService
	header   lipgloss.Style
	plain    bool
	pages    map[string]page
	order    []string
	waiters  map[string][]chan struct{}
}

// NewTerminalSurface writes to out. markdown may be nil for raw text.
// Headers are unstyled on ASCII-only terminals.
func NewTerminalSurface(out io.Writer, markdown *services.MarkdownService) *TerminalSurface {
	return &TerminalSurface{
		out:      out,
		markdown: markdown,
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		plain:    lipgloss.ColorProfile() == termenv.Ascii,
		pages:    make(map[string]page),
		waiters:  make(map[string][]chan struct{}),
	}
}

// RenderInitial prints the placeholder and issues a new handle.
func (s *TerminalSurface) RenderInitial(_ context.Context, params obliquetypes.SessionParameters, placeholder string) (string, error) {
	handle := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[handle] = page{name: params.DisplayName(), text: placeholder}
	s.order = append(s.order, handle)
	s.printHeader(handle, params.DisplayName(), 0, 0)
	_, err := fmt.Fprintln(s.out, placeholder)
	return handle, err
}

// RenderUpdate prints a page of a session.
func (s *TerminalSurface) RenderUpdate(_ context.Context, handle, text string, pageNum, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[handle]
	if !ok {
		return fmt.Errorf("%w: %s", obliquetypes.ErrSessionNotFound, handle)
	}
	p.text, p.page, p.total = text, pageNum, total
	final := total > 0 && pageNum == total && text != services.RegeneratingPlaceholder
	if final {
		p.finals++
	}
	s.pages[handle] = p

	s.printHeader(handle, p.name, pageNum, total)
	body := text
	if s.markdown != nil {
		if rendered, err := s.markdown.Render(text); err == nil && rendered != "" {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	if _, err := fmt.Fprintln(s.out, body); err != nil {
		return err
	}

	if final {
		for _, ch := range s.waiters[handle] {
			close(ch)
		}
		delete(s.waiters, handle)
	}
	return nil
}

// RenderRemove forgets a session and notes its removal.
func (s *TerminalSurface) RenderRemove(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pages, handle)
	for _, ch := range s.waiters[handle] {
		close(ch)
	}
	delete(s.waiters, handle)
	for i, h := range s.order {
		if h == handle {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	_, err := fmt.Fprintf(s.out, "[%s removed]\n", ShortHandle(handle))
	return err
}

// WaitFinal blocks until a generation for handle has rendered its last page
// or ctx ends. It returns at once if one already has.
func (s *TerminalSurface) WaitFinal(ctx context.Context, handle string) error {
	s.mu.Lock()
	p, ok := s.pages[handle]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", obliquetypes.ErrSessionNotFound, handle)
	}
	if p.finals > 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters[handle] = append(s.waiters[handle], ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Preview returns the last rendered text of handle cut to width cells.
func (s *TerminalSurface) Preview(handle string, width int) string {
	s.mu.Lock()
	p, ok := s.pages[handle]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	flat := strings.Join(strings.Fields(p.text), " ")
	return ansi.Truncate(flat, width, "…")
}

// Handles returns known handles in creation order.
func (s *TerminalSurface) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *TerminalSurface) printHeader(handle, name string, pageNum, total int) {
	label := fmt.Sprintf("── %s as %s", ShortHandle(handle), name)
	if total > 0 {
		label += fmt.Sprintf(" · page %d/%d", pageNum, total)
	}
	label += " ──"
	if !s.plain {
		label = s.header.Render(label)
	}
	_, _ = fmt.Fprintln(s.out, label)
}

// ShortHandle is the display form of a handle.
func ShortHandle(handle string) string {
	if len(handle) > 8 {
		return handle[:8]
	}
	return handle
}
