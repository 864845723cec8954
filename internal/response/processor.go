// Package response cleans raw completion text and, in self mode, isolates the
// turn written for the target identity.
package response

import (
	"regexp"
	"strings"

	"oblique/pkg/obliquetypes"
)

// TerminationMarkers end a completion at their first occurrence.
var TerminationMarkers = []string{
	"</stop>",
	"<|endoftext|>",
	"<|eot_id|>",
	"<|im_end|>",
	"<|end_of_text|>",
}

var (
	identityTagPattern = regexp.MustCompile(`(?i)\[oblique(?::[^\]\n]*)?\]`)
	horizontalSpace    = regexp.MustCompile(`[ \t]+`)
)

// Processor turns raw completion text into a user-visible candidate.
type Processor struct{}

// NewProcessor creates a Processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process cleans raw and applies the session mode. stopsApplied reports that
// the remote API was given turn stop sequences, which already bound the
// target's turn in the instruct dialect. A result that is empty after
// cleaning is reported as obliquetypes.ErrEmptyCompletion.
func (p *Processor) Process(raw string, params obliquetypes.SessionParameters, dialect obliquetypes.ProfileType, stopsApplied bool) (string, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return "", obliquetypes.ErrEmptyCompletion
	}

	if params.EffectiveMode() == obliquetypes.ModeFull {
		return cleaned, nil
	}
	if dialect == obliquetypes.ProfileInstruct && stopsApplied {
		return cleaned, nil
	}

	extracted := ExtractTurn(cleaned, params.DisplayName(), dialect, params.OpensTurn())
	if strings.TrimSpace(extracted) == "" {
		return cleaned, nil
	}
	return extracted, nil
}

// Clean truncates at the first termination marker, removes identity tags,
// restores escaped newlines and collapses horizontal whitespace. Removing a
// tag can expose a new tag or marker, so the pass repeats until the text is
// stable. Clean is idempotent.
func Clean(raw string) string {
	text := raw
	for {
		next := cleanPass(text)
		if next == text {
			return next
		}
		text = next
	}
}

// cleanPass never lengthens its input.
func cleanPass(text string) string {
	cut := len(text)
	for _, marker := range TerminationMarkers {
		if i := strings.Index(text, marker); i != -1 && i < cut {
			cut = i
		}
	}
	text = text[:cut]

	text = strings.ReplaceAll(text, `\n`, "\n")
	text = identityTagPattern.ReplaceAllString(text, "")
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
