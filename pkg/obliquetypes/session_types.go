// Package obliquetypes defines session parameter types for Oblique.
package obliquetypes

import "strings"

// IdentityMarker is appended to simulated display names so later prompts can
// recognise and collapse turns that were produced by a previous simulation.
const IdentityMarker = "[oblique]"

// Mode selects how much of a completion is kept.
type Mode string

const (
	// ModeSelf keeps only the turn belonging to the target identity.
	ModeSelf Mode = "self"
	// ModeFull keeps the whole cleaned completion.
	ModeFull Mode = "full"
)

// SessionParameters configure one generation session. They are immutable
// after the session is created.
type SessionParameters struct {
	Mode           Mode     `json:"mode"`
	Seed           string   `json:"seed,omitempty"`
	SuppressName   bool     `json:"suppress_name"`
	CustomName     string   `json:"custom_name,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TargetIdentity string   `json:"target_identity"`
	ModelKey       string   `json:"model_key"`

	// Routing fields owned by the rendering collaborator.
	OutputChannel  string `json:"output_channel,omitempty"`
	IdentityHandle string `json:"identity_handle,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

// DisplayName returns the name the simulated turn is written under.
func (p SessionParameters) DisplayName() string {
	name := p.TargetIdentity
	if p.CustomName != "" {
		name = p.CustomName
	}
	return strings.TrimSpace(strings.ReplaceAll(name, IdentityMarker, ""))
}

// EffectiveMode returns the mode, defaulting to ModeSelf.
func (p SessionParameters) EffectiveMode() Mode {
	if p.Mode == "" {
		return ModeSelf
	}
	return p.Mode
}

// OpensTurn reports whether the formatted prompt ends with an open turn for
// the target identity, so the completion starts inside that turn.
func (p SessionParameters) OpensTurn() bool {
	return p.Seed != "" || !p.SuppressName
}
