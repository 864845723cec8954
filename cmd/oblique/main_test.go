package main

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/internal/config"
	"oblique/pkg/obliquetypes"
)

func TestDefaultUserName(t *testing.T) {
	t.Setenv("OBLIQUE_USER", "")
	t.Setenv("USER", "carol")
	assert.Equal(t, "carol", defaultUserName())

	t.Setenv("OBLIQUE_USER", "dave")
	assert.Equal(t, "dave", defaultUserName())

	t.Setenv("OBLIQUE_USER", "")
	t.Setenv("USER", "")
	t.Setenv("USERNAME", "")
	assert.Equal(t, "me", defaultUserName())
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := loadCatalog(config.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "llama-405b", catalog.Default())

	catalog, err = loadCatalog(config.Settings{Profile: "llama-405b-instruct"})
	require.NoError(t, err)
	assert.Equal(t, "llama-405b-instruct", catalog.Default())

	_, err = loadCatalog(config.Settings{Profile: "nope"})
	assert.ErrorIs(t, err, obliquetypes.ErrUnknownProfile)
}

func TestNewRuntime(t *testing.T) {
	v := viper.GetViper()
	config.SetDefaults(v)
	v.Set(config.KeyAPIKey, "sk-test")
	v.Set(config.KeyAgentIdleTimeout, 0)
	t.Cleanup(func() {
		v.Set(config.KeyAPIKey, "")
	})

	var out bytes.Buffer
	rt, err := newRuntime(&out, true)
	require.NoError(t, err)
	defer rt.Close()

	names := make([]string, 0)
	for name := range rt.Registry.GetAllServices() {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"generation"}, names)

	app := rt.App("me")
	require.NoError(t, app.Say("hello"))
	assert.Equal(t, 1, rt.Transcript.Len())
}

func TestNewRuntime_RequiresAPIKey(t *testing.T) {
	v := viper.GetViper()
	config.SetDefaults(v)
	v.Set(config.KeyAPIKey, "")
	t.Setenv("OPENROUTER_API_KEY", "")

	_, err := newRuntime(&bytes.Buffer{}, true)
	assert.Error(t, err)
}
