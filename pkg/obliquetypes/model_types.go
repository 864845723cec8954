// Package obliquetypes defines model profile types for Oblique.
// Profiles are loaded once at startup and treated as read-only afterwards.
package obliquetypes

import "fmt"

// ProfileType selects the prompt dialect and request body shape.
type ProfileType string

const (
	// ProfileBase is a raw text-completion model using the tag dialect.
	ProfileBase ProfileType = "base"
	// ProfileInstruct is a chat model primed with a system/user pair and an
	// assistant prefill, using the turn-labeled dialect.
	ProfileInstruct ProfileType = "instruct"
)

// ModelProfile describes one generation backend.
type ModelProfile struct {
	Key                 string            `yaml:"key" json:"key"`
	Type                ProfileType       `yaml:"type" json:"type"`
	ModelID             string            `yaml:"model_id" json:"model_id"`
	Endpoint            string            `yaml:"endpoint" json:"endpoint"`
	MaxTokens           int               `yaml:"max_tokens" json:"max_tokens"`
	TemperatureDefault  float64           `yaml:"temperature_default" json:"temperature_default"`
	Quantization        string            `yaml:"quantization,omitempty" json:"quantization,omitempty"`
	SupportsMultiChoice bool              `yaml:"supports_multi_choice" json:"supports_multi_choice"`
	SystemPrompt        string            `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	UserPrefix          string            `yaml:"user_prefix,omitempty" json:"user_prefix,omitempty"`
	Headers             map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ModelCatalogFile is the on-disk shape of a profile catalog.
type ModelCatalogFile struct {
	Default  string         `yaml:"default"`
	Profiles []ModelProfile `yaml:"profiles"`
}

// Temperature resolves the sampling temperature for a session.
func (m ModelProfile) Temperature(params SessionParameters) float64 {
	if params.Temperature != nil {
		return *params.Temperature
	}
	return m.TemperatureDefault
}

// Validate checks the fields the core relies on.
func (m ModelProfile) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("profile has empty key")
	}
	switch m.Type {
	case ProfileBase, ProfileInstruct:
	default:
		return fmt.Errorf("profile %q: unknown type %q", m.Key, m.Type)
	}
	if m.ModelID == "" {
		return fmt.Errorf("profile %q: model_id is required", m.Key)
	}
	if m.Endpoint == "" {
		return fmt.Errorf("profile %q: endpoint is required", m.Key)
	}
	if m.MaxTokens <= 0 {
		return fmt.Errorf("profile %q: max_tokens must be positive", m.Key)
	}
	return nil
}
