package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"oblique/internal/data/embedded"
	"oblique/internal/logger"
	"oblique/pkg/obliquetypes"
)

// Catalog is a validated, read-only set of model profiles.
type Catalog struct {
	defaultKey string
	keys       []string
	profiles   map[string]obliquetypes.ModelProfile
}

// LoadCatalog reads the catalog at path, or the embedded catalog when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := embedded.ProfilesData
	source := "embedded"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
		}
		data = raw
		source = path
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s catalog: %w", source, err)
	}
	logger.Debug("Profile catalog loaded", "source", source, "profiles", len(catalog.keys), "default", catalog.defaultKey)
	return catalog, nil
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file obliquetypes.ModelCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles defined")
	}

	c := &Catalog{profiles: make(map[string]obliquetypes.ModelProfile, len(file.Profiles))}
	for _, p := range file.Profiles {
		p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.profiles[p.Key]; dup {
			return nil, fmt.Errorf("duplicate profile key %q", p.Key)
		}
		c.profiles[p.Key] = p
		c.keys = append(c.keys, p.Key)
	}

	c.defaultKey = file.Default
	if c.defaultKey == "" {
		c.defaultKey = c.keys[0]
	}
	if _, ok := c.profiles[c.defaultKey]; !ok {
		return nil, fmt.Errorf("%w: default %q", obliquetypes.ErrUnknownProfile, c.defaultKey)
	}
	return c, nil
}

// Default returns the default profile key.
func (c *Catalog) Default() string {
	return c.defaultKey
}

// WithDefault returns a copy whose default is key.
func (c *Catalog) WithDefault(key string) (*Catalog, error) {
	if key == "" {
		return c, nil
	}
	if _, ok := c.profiles[key]; !ok {
		return nil, fmt.Errorf("%w: %q", obliquetypes.ErrUnknownProfile, key)
	}
	cp := *c
	cp.defaultKey = key
	return &cp, nil
}

// Get returns the profile for key.
func (c *Catalog) Get(key string) (obliquetypes.ModelProfile, error) {
	p, ok := c.profiles[key]
	if !ok {
		return obliquetypes.ModelProfile{}, fmt.Errorf("%w: %q", obliquetypes.ErrUnknownProfile, key)
	}
	return p, nil
}

// Keys returns profile keys in catalog order.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Profiles returns a copy of the profile map.
func (c *Catalog) Profiles() map[string]obliquetypes.ModelProfile {
	out := make(map[string]obliquetypes.ModelProfile, len(c.profiles))
	for k, v := range c.profiles {
		out[k] = v
	}
	return out
}
