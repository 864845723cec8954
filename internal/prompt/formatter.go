// Package prompt turns channel history into a single completion prompt in
// either the tag dialect (base models) or the turn-labeled dialect (instruct
// models).
package prompt

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"oblique/internal/logger"
	"oblique/pkg/obliquetypes"
)

const (
	// ClearSentinel truncates all history older than the message carrying it.
	ClearSentinel = "oblique_clear"
	// PrivatePrefix marks messages that are never shown to the model.
	PrivatePrefix = ".."
)

// placeholders are the bot's own progress texts.
var placeholders = map[string]struct{}{
	"Oblique: Generating...": {},
	"Oblique: Generating…":   {},
	"Generating...":          {},
	"Generating…":            {},
	"Regenerating...":        {},
	"Regenerating…":          {},
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// Prompt is a formatted prompt plus the speakers that appear in it.
type Prompt struct {
	Text string
	// Speakers are distinct speaker names in first-seen order, the target
	// name last unless already present.
	Speakers []string
	// Entries is the number of history entries that made it into Text.
	Entries int
}

// StopSequences renders the speakers as instruct-dialect turn openers.
func (p Prompt) StopSequences() []string {
	stops := make([]string, 0, len(p.Speakers))
	for _, s := range p.Speakers {
		stops = append(stops, s+":")
	}
	return stops
}

// TokenCounter measures prompt size for the optional token budget.
type TokenCounter interface {
	CountTokens(text string) int
}

// Formatter builds prompts. The zero value formats without a token budget.
type Formatter struct {
	// Counter and TokenBudget drop the oldest entries until the prompt fits.
	// A nil Counter or non-positive budget disables the check.
	Counter     TokenCounter
	TokenBudget int

	policy *bluemonday.Policy
}

// NewFormatter creates a Formatter with an optional token budget.
func NewFormatter(counter TokenCounter, budget int) *Formatter {
	return &Formatter{
		Counter:     counter,
		TokenBudget: budget,
		policy:      bluemonday.StrictPolicy(),
	}
}

// Format renders history for the dialect of profileType. Entries are
// ordered by timestamp before rendering.
func (f *Formatter) Format(history []obliquetypes.ChatEntry, params obliquetypes.SessionParameters, profileType obliquetypes.ProfileType) Prompt {
	name := params.DisplayName()
	lines, speakers := f.renderEntries(Clean(history), profileType)
	trailer := renderTrailer(name, params, profileType)

	if f.Counter != nil && f.TokenBudget > 0 {
		dropped := 0
		for len(lines) > 0 && f.Counter.CountTokens(strings.Join(lines, "")+trailer) > f.TokenBudget {
			lines = lines[1:]
			speakers = speakers[1:]
			dropped++
		}
		if dropped > 0 {
			logger.Debug("Prompt trimmed to token budget", "dropped", dropped, "budget", f.TokenBudget)
		}
	}

	return Prompt{
		Text:     strings.Join(lines, "") + trailer,
		Speakers: distinct(speakers, name),
		Entries:  len(lines),
	}
}

// Clean orders history oldest first and drops everything the model must not
// see: entries before the last clear sentinel, private entries and the bot's
// own placeholders.
func Clean(history []obliquetypes.ChatEntry) []obliquetypes.ChatEntry {
	ordered := make([]obliquetypes.ChatEntry, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for i := len(ordered) - 1; i >= 0; i-- {
		if strings.TrimSpace(ordered[i].Text) == ClearSentinel {
			ordered = ordered[i+1:]
			break
		}
	}

	kept := ordered[:0:0]
	for _, e := range ordered {
		text := strings.TrimSpace(e.Text)
		if strings.HasPrefix(text, PrivatePrefix) {
			continue
		}
		if _, ok := placeholders[text]; ok {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (f *Formatter) renderEntries(entries []obliquetypes.ChatEntry, profileType obliquetypes.ProfileType) ([]string, []string) {
	lines := make([]string, 0, len(entries))
	speakers := make([]string, 0, len(entries))

	for _, e := range entries {
		author := CleanName(e.AuthorName)
		text := f.cleanText(e)
		if author == "" || strings.TrimSpace(text) == "" {
			continue
		}

		switch profileType {
		case obliquetypes.ProfileInstruct:
			lines = append(lines, author+": "+text+"\n")
		default:
			lines = append(lines, "<"+author+"> "+strings.ReplaceAll(text, "\n", `\n`)+"\n")
		}
		speakers = append(speakers, author)
	}
	return lines, speakers
}

func renderTrailer(name string, params obliquetypes.SessionParameters, profileType obliquetypes.ProfileType) string {
	switch profileType {
	case obliquetypes.ProfileInstruct:
		if params.Seed != "" {
			return name + ": " + params.Seed
		}
		if params.SuppressName {
			return ""
		}
		return name + ":"
	default:
		if params.Seed != "" {
			return "<" + name + "> " + params.Seed
		}
		if params.SuppressName {
			return ""
		}
		return "<" + name + ">\n"
	}
}

// cleanText strips markup, identity artifacts and rewrites mentions.
func (f *Formatter) cleanText(e obliquetypes.ChatEntry) string {
	text := e.Text
	if strings.ContainsAny(text, "<&") {
		text = rewriteMentions(text, e.Mentions)
		text = html.UnescapeString(f.sanitizer().Sanitize(text))
	}
	text = strings.ReplaceAll(text, obliquetypes.IdentityMarker, "")
	return strings.TrimSpace(text)
}

func (f *Formatter) sanitizer() *bluemonday.Policy {
	if f.policy == nil {
		f.policy = bluemonday.StrictPolicy()
	}
	return f.policy
}

// CleanName removes the identity marker from a display name.
func CleanName(name string) string {
	return strings.TrimSpace(strings.ReplaceAll(name, obliquetypes.IdentityMarker, ""))
}

func rewriteMentions(text string, mentions map[string]string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := mentionPattern.FindStringSubmatch(m)[1]
		if name, ok := mentions[id]; ok && name != "" {
			return "@" + CleanName(name)
		}
		return "@unknown-user"
	})
}

func distinct(names []string, target string) []string {
	seen := make(map[string]struct{}, len(names)+1)
	out := make([]string, 0, len(names)+1)
	for _, n := range append(names, target) {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
