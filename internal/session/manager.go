package session

import (
	"sort"
	"sync"

	"oblique/internal/logger"
	"oblique/pkg/obliquetypes"
)

// Manager indexes registered sessions by id, owner and scope. All three
// indexes change together under one mutex.
type Manager struct {
	mu       sync.RWMutex
	contexts map[string]*GenerationContext
	byOwner  map[string]map[string]struct{}
	byScope  map[string]map[string]struct{}
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{
		contexts: make(map[string]*GenerationContext),
		byOwner:  make(map[string]map[string]struct{}),
		byScope:  make(map[string]map[string]struct{}),
	}
}

// CreateContext builds a session for owner in scope. The session is not
// visible through the manager until RegisterMessage is called.
func (m *Manager) CreateContext(ownerID, scopeID string, params obliquetypes.SessionParameters) *GenerationContext {
	return NewGenerationContext(ownerID, scopeID, params)
}

// RegisterMessage registers ctx under the rendering-surface id. Registering
// a context that already has an id moves it to the new id.
func (m *Manager) RegisterMessage(ctx *GenerationContext, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := ctx.SessionID(); prev != "" && prev != sessionID {
		m.removeLocked(prev)
	}
	if existing, ok := m.contexts[sessionID]; ok && existing != ctx {
		m.removeLocked(sessionID)
	}

	ctx.setSessionID(sessionID)
	m.contexts[sessionID] = ctx
	addIndex(m.byOwner, ctx.OwnerID, sessionID)
	addIndex(m.byScope, ctx.ScopeID, sessionID)
	logger.Debug("Session registered", "session", sessionID, "owner", ctx.OwnerID, "scope", ctx.ScopeID)
}

// GetContext returns the session registered under sessionID.
func (m *Manager) GetContext(sessionID string) (*GenerationContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.contexts[sessionID]
	return ctx, ok
}

// RemoveContext unregisters a session. Unknown ids are ignored.
func (m *Manager) RemoveContext(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(sessionID)
}

func (m *Manager) removeLocked(sessionID string) {
	ctx, ok := m.contexts[sessionID]
	if !ok {
		return
	}
	delete(m.contexts, sessionID)
	removeIndex(m.byOwner, ctx.OwnerID, sessionID)
	removeIndex(m.byScope, ctx.ScopeID, sessionID)
	logger.Debug("Session removed", "session", sessionID)
}

// SessionsByOwner returns the sorted ids of the sessions owned by ownerID.
func (m *Manager) SessionsByOwner(ownerID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.byOwner[ownerID])
}

// SessionsByScope returns the sorted ids of the sessions in scopeID.
func (m *Manager) SessionsByScope(scopeID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.byScope[scopeID])
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}

func addIndex(index map[string]map[string]struct{}, key, sessionID string) {
	bucket, ok := index[key]
	if !ok {
		bucket = make(map[string]struct{})
		index[key] = bucket
	}
	bucket[sessionID] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, sessionID string) {
	bucket, ok := index[key]
	if !ok {
		return
	}
	delete(bucket, sessionID)
	if len(bucket) == 0 {
		delete(index, key)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
