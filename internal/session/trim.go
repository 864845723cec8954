package session

import "strings"

// TrimText cuts a candidate back to its last complete sentence.
//
// A trailing line with no period is dropped. If the last line already ends in
// a period, everything after the second-to-last period of the whole text is
// dropped. Otherwise the last line is cut after its final period.
func TrimText(content string) string {
	lines := strings.Split(content, "\n")
	last := lines[len(lines)-1]

	if !strings.Contains(last, ".") {
		if len(lines) == 1 {
			return ""
		}
		return strings.Join(lines[:len(lines)-1], "\n")
	}

	if strings.HasSuffix(strings.TrimSpace(last), ".") {
		lastPeriod := strings.LastIndex(content, ".")
		if secondLast := strings.LastIndex(content[:lastPeriod], "."); secondLast != -1 {
			return content[:secondLast+1]
		}
		return content
	}

	lines[len(lines)-1] = last[:strings.LastIndex(last, ".")+1]
	return strings.Join(lines, "\n")
}
