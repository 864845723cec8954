package completion

import (
	"oblique/pkg/obliquetypes"
)

// textCompletionRequest is the raw-prompt body sent to base profiles.
type textCompletionRequest struct {
	Model       string           `json:"model"`
	Prompt      string           `json:"prompt"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	N           int              `json:"n,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Provider    *providerOptions `json:"provider,omitempty"`
}

// chatCompletionRequest is the prefilled chat body sent to instruct profiles.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	N           int              `json:"n,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Provider    *providerOptions `json:"provider,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type providerOptions struct {
	Quantizations []string `json:"quantizations,omitempty"`
}

// buildBody shapes the request body for the profile dialect. n is only sent
// when more than one choice is wanted.
func buildBody(req Request, profile obliquetypes.ModelProfile, n int) any {
	var provider *providerOptions
	if profile.Quantization != "" {
		provider = &providerOptions{Quantizations: []string{profile.Quantization}}
	}
	if n <= 1 {
		n = 0
	}

	if profile.Type == obliquetypes.ProfileInstruct {
		return chatCompletionRequest{
			Model: profile.ModelID,
			Messages: []chatMessage{
				{Role: "system", Content: profile.SystemPrompt},
				{Role: "user", Content: profile.UserPrefix},
				{Role: "assistant", Content: req.Prompt},
			},
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			N:           n,
			Stop:        req.Stop,
			Provider:    provider,
		}
	}

	return textCompletionRequest{
		Model:       profile.ModelID,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		N:           n,
		Stop:        req.Stop,
		Provider:    provider,
	}
}
