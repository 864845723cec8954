package response

import (
	"regexp"
	"strings"
	"unicode"

	"oblique/pkg/obliquetypes"
)

const (
	// speakerColonWindow bounds how far into a line the turn colon may sit.
	speakerColonWindow = 30
	maxSpeakerLength   = 25
)

var (
	tagLinePattern    = regexp.MustCompile(`^<([^<>]{1,25})>(?:\s(.*))?$`)
	timeNumberPattern = regexp.MustCompile(`^[\d\s.:/\-]+$`)
)

// speakerLine is a line that opens a new turn.
type speakerLine struct {
	speaker string
	content string
}

// ExtractTurn keeps only the target's turn. Collection starts at a speaker
// line for target (or at the first line when leadingIsTarget and the text
// opens inside the target's turn), runs through continuation lines and stops
// at the next speaker line for anyone else.
func ExtractTurn(text, target string, dialect obliquetypes.ProfileType, leadingIsTarget bool) string {
	parse := parseColonLine
	if dialect != obliquetypes.ProfileInstruct {
		parse = parseTagLine
	}

	var kept []string
	collecting := leadingIsTarget
	started := false

	for _, line := range strings.Split(text, "\n") {
		if sl, ok := parse(line); ok {
			if strings.EqualFold(sl.speaker, target) {
				collecting = true
				started = true
				if sl.content != "" {
					kept = append(kept, sl.content)
				}
				continue
			}
			if collecting && (started || len(kept) > 0) {
				break
			}
			collecting = false
			continue
		}
		if collecting {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// parseColonLine recognises "name: content" turn openers.
func parseColonLine(line string) (speakerLine, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 || idx > speakerColonWindow {
		return speakerLine{}, false
	}
	// "scheme://..." is a URL, not a turn.
	if strings.HasPrefix(line[idx+1:], "//") {
		return speakerLine{}, false
	}
	name := strings.TrimSpace(line[:idx])
	content := strings.TrimSpace(line[idx+1:])
	if content == "" || !plausibleName(name) {
		return speakerLine{}, false
	}
	return speakerLine{speaker: name, content: content}, true
}

// parseTagLine recognises "<name> content" turn openers.
func parseTagLine(line string) (speakerLine, bool) {
	m := tagLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return speakerLine{}, false
	}
	name := strings.TrimSpace(m[1])
	if !plausibleName(name) {
		return speakerLine{}, false
	}
	return speakerLine{speaker: name, content: strings.TrimSpace(m[2])}, true
}

func plausibleName(name string) bool {
	n := len([]rune(name))
	if n < 1 || n > maxSpeakerLength {
		return false
	}
	if timeNumberPattern.MatchString(name) {
		return false
	}
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		case strings.ContainsRune("_-.'", r):
		default:
			return false
		}
	}
	return true
}
