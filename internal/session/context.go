// Package session holds the navigable generation history of a simulation
// session and the process-wide registry that indexes sessions.
package session

import (
	"sync"
	"time"

	"oblique/pkg/obliquetypes"
)

// GenerationContext is one simulation session: a bounded history of candidate
// outputs and a cursor into it. It is safe for concurrent use; generation
// callbacks append while UI actions navigate.
type GenerationContext struct {
	OwnerID    string
	ScopeID    string
	Parameters obliquetypes.SessionParameters
	CreatedAt  time.Time
	// HistoryBefore bounds the history fetched for every generation of the
	// session, so rerolls see the same conversation as the first run.
	HistoryBefore time.Time

	mu           sync.RWMutex
	history      *ring
	currentIndex int
	sessionID    string
}

// NewGenerationContext creates an unregistered session with empty history.
func NewGenerationContext(ownerID, scopeID string, params obliquetypes.SessionParameters) *GenerationContext {
	now := time.Now()
	return &GenerationContext{
		OwnerID:       ownerID,
		ScopeID:       scopeID,
		Parameters:    params,
		CreatedAt:     now,
		HistoryBefore: now,
		history:       newRing(HistoryCapacity),
	}
}

// SessionID returns the rendering-surface id the session is registered
// under, or "" before registration.
func (c *GenerationContext) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *GenerationContext) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// AddGeneration appends text, dropping the oldest entry past capacity, and
// moves the cursor to the new entry.
func (c *GenerationContext) AddGeneration(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.push(text)
	c.currentIndex = c.history.len() - 1
}

// Navigate moves the cursor to index and returns the entry there. It returns
// false and leaves the cursor untouched when index is out of range.
func (c *GenerationContext) Navigate(index int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= c.history.len() {
		return "", false
	}
	c.currentIndex = index
	return c.history.at(index), true
}

// Step moves the cursor by delta from its current position in one critical
// section, so a concurrent append cannot change the starting point. It
// returns false and leaves the cursor untouched when the target is out of
// range.
func (c *GenerationContext) Step(delta int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.currentIndex + delta
	if target < 0 || target >= c.history.len() {
		return "", false
	}
	c.currentIndex = target
	return c.history.at(target), true
}

// UpdateCurrent replaces the entry under the cursor with fn applied to it,
// reading and writing under one lock. It returns false when the history is
// empty.
func (c *GenerationContext) UpdateCurrent(fn func(string) string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history.len() == 0 {
		return "", false
	}
	updated := fn(c.history.at(c.currentIndex))
	c.history.set(c.currentIndex, updated)
	return updated, true
}

// CurrentContent returns the entry under the cursor, or "" when empty.
func (c *GenerationContext) CurrentContent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.history.len() == 0 {
		return ""
	}
	return c.history.at(c.currentIndex)
}

// CurrentIndex returns the cursor position.
func (c *GenerationContext) CurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentIndex
}

// Len returns the number of retained entries.
func (c *GenerationContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.len()
}

// History returns a copy of the retained entries, oldest first.
func (c *GenerationContext) History() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.slice()
}

// Snapshot returns the cursor, the entry under it and the history length
// read under one lock.
func (c *GenerationContext) Snapshot() (index int, content string, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total = c.history.len()
	if total == 0 {
		return 0, "", 0
	}
	return c.currentIndex, c.history.at(c.currentIndex), total
}
