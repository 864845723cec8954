package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock service for testing
type MockService struct {
	name            string
	initializeCalls int
	initializeError error
}

func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

func (m *MockService) Name() string {
	return m.name
}

func (m *MockService) Initialize() error {
	m.initializeCalls++
	return m.initializeError
}

func TestRegistry_NewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.Empty(t, registry.GetAllServices())
}

func TestRegistry_RegisterService(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.RegisterService(NewMockService("test1")))
	require.NoError(t, registry.RegisterService(NewMockService("test2")))

	err := registry.RegisterService(NewMockService("test1"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Len(t, registry.GetAllServices(), 2)
}

func TestRegistry_GetService(t *testing.T) {
	registry := NewRegistry()
	svc := NewMockService("present")
	require.NoError(t, registry.RegisterService(svc))

	got, err := registry.GetService("present")
	require.NoError(t, err)
	assert.Same(t, svc, got)

	_, err = registry.GetService("absent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_InitializeAll(t *testing.T) {
	registry := NewRegistry()
	a, b := NewMockService("a"), NewMockService("b")
	require.NoError(t, registry.RegisterService(a))
	require.NoError(t, registry.RegisterService(b))

	require.NoError(t, registry.InitializeAll())
	assert.Equal(t, 1, a.initializeCalls)
	assert.Equal(t, 1, b.initializeCalls)

	b.initializeError = errors.New("boom")
	err := registry.InitializeAll()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize service b")
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterService(NewMockService("mock")))
	require.NoError(t, registry.RegisterService(NewMarkdownService("notty")))

	mock, err := Lookup[*MockService](registry, "mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", mock.Name())

	_, err = Lookup[*MarkdownService](registry, "mock")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected type")

	_, err = Lookup[*MarkdownService](registry, "missing")
	assert.Error(t, err)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.RegisterService(NewMockService(fmt.Sprintf("svc-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = registry.GetService(fmt.Sprintf("svc-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, registry.GetAllServices(), 20)
}
