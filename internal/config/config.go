// Package config loads process settings and the model profile catalog.
// Settings come from flags, OBLIQUE_* environment variables and an optional
// .env file; profiles come from a YAML catalog.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"oblique/internal/logger"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "OBLIQUE"

// Setting keys.
const (
	KeyAPIKey               = "api_key"
	KeyProfile              = "profile"
	KeyProfilesFile         = "profiles_file"
	KeyHistoryLimit         = "history_limit"
	KeyMaxResponseTokens    = "max_response_tokens"
	KeyCandidates           = "candidates"
	KeyRateLimit            = "rate_limit"
	KeyTokenBudget          = "token_budget"
	KeyAgentIdleTimeout     = "agent_idle_timeout"
	KeyRequestLog           = "request_log"
	KeyRequestLogMaxMB      = "request_log_max_mb"
	KeyRequestLogMaxBackups = "request_log_max_backups"
	KeyTitle                = "title"
	KeyDebugHTTP            = "debug_http"
	KeyTranscript           = "transcript"
)

// Settings are the resolved process settings.
type Settings struct {
	APIKey               string
	Profile              string
	ProfilesFile         string
	HistoryLimit         int
	MaxResponseTokens    int
	Candidates           int
	RateLimit            int
	TokenBudget          int
	AgentIdleTimeout     time.Duration
	RequestLog           string
	RequestLogMaxMB      int
	RequestLogMaxBackups int
	Title                string
	DebugHTTP            bool
	Transcript           string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHistoryLimit, 200)
	v.SetDefault(KeyMaxResponseTokens, 600)
	v.SetDefault(KeyCandidates, 3)
	v.SetDefault(KeyRateLimit, 5)
	v.SetDefault(KeyTokenBudget, 0)
	v.SetDefault(KeyAgentIdleTimeout, 30*time.Minute)
	v.SetDefault(KeyRequestLogMaxMB, 50)
	v.SetDefault(KeyRequestLogMaxBackups, 5)
	v.SetDefault(KeyTitle, "Oblique")
	v.SetDefault(KeyDebugHTTP, false)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped and existing variables are never overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logger.Debug("Loaded environment file", "path", path)
	}
	return nil
}

// BindEnv wires v to the OBLIQUE_* environment. The API key also falls back
// to OPENROUTER_API_KEY.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyAPIKey, EnvPrefix+"_API_KEY", "OPENROUTER_API_KEY"); err != nil {
		return fmt.Errorf("failed to bind api key: %w", err)
	}
	return nil
}

// Load resolves Settings from v and validates them.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		APIKey:               strings.TrimSpace(v.GetString(KeyAPIKey)),
		Profile:              v.GetString(KeyProfile),
		ProfilesFile:         v.GetString(KeyProfilesFile),
		HistoryLimit:         v.GetInt(KeyHistoryLimit),
		MaxResponseTokens:    v.GetInt(KeyMaxResponseTokens),
		Candidates:           v.GetInt(KeyCandidates),
		RateLimit:            v.GetInt(KeyRateLimit),
		TokenBudget:          v.GetInt(KeyTokenBudget),
		AgentIdleTimeout:     v.GetDuration(KeyAgentIdleTimeout),
		RequestLog:           v.GetString(KeyRequestLog),
		RequestLogMaxMB:      v.GetInt(KeyRequestLogMaxMB),
		RequestLogMaxBackups: v.GetInt(KeyRequestLogMaxBackups),
		Title:                v.GetString(KeyTitle),
		DebugHTTP:            v.GetBool(KeyDebugHTTP),
		Transcript:           v.GetString(KeyTranscript),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks numeric bounds.
func (s Settings) Validate() error {
	switch {
	case s.HistoryLimit <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyHistoryLimit, s.HistoryLimit)
	case s.MaxResponseTokens <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyMaxResponseTokens, s.MaxResponseTokens)
	case s.Candidates < 1 || s.Candidates > 10:
		return fmt.Errorf("%s must be between 1 and 10, got %d", KeyCandidates, s.Candidates)
	case s.RateLimit <= 0:
		return fmt.Errorf("%s must be positive, got %d", KeyRateLimit, s.RateLimit)
	case s.TokenBudget < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeyTokenBudget, s.TokenBudget)
	case s.AgentIdleTimeout < 0:
		return fmt.Errorf("%s must not be negative, got %s", KeyAgentIdleTimeout, s.AgentIdleTimeout)
	}
	return nil
}

// RequireAPIKey reports a missing credential.
func (s Settings) RequireAPIKey() error {
	if s.APIKey == "" {
		return fmt.Errorf("no API key: set %s_API_KEY or OPENROUTER_API_KEY", EnvPrefix)
	}
	return nil
}
