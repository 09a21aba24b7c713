// Package sqlguard turns raw model output into a single trusted SELECT
// statement, or into the fixed fallback statement when it cannot.
package sqlguard

import (
	"regexp"
	"strings"
)

// FallbackSQL is returned whenever no trusted statement can be derived.
const FallbackSQL = "SELECT * FROM ai_projects LIMIT 10;"

const terminator = ";"

var fencePattern = regexp.MustCompile("(?i)```(sql)?")

// Sanitize reduces raw to one statement that starts with SELECT. It returns
// the statement and true, or FallbackSQL and false when raw was rejected.
//
// Everything after the first terminator is discarded, including when the
// terminator sits inside a string literal.
func Sanitize(raw string) (string, bool) {
	text := strings.TrimSpace(stripFences(raw))

	if idx := strings.Index(text, terminator); idx >= 0 {
		text = text[:idx+len(terminator)]
	} else {
		text += terminator
	}

	if !hasSelectPrefix(text) {
		return FallbackSQL, false
	}
	return text, true
}

// IsTrusted reports whether sqlText is already in sanitized form, i.e. it is
// a fixed point of Sanitize.
func IsTrusted(sqlText string) bool {
	sanitized, _ := Sanitize(sqlText)
	return sanitized == sqlText
}

// Removing one fence can join backticks into a new one, so strip until stable.
func stripFences(raw string) string {
	for {
		stripped := fencePattern.ReplaceAllString(raw, "")
		if stripped == raw {
			return stripped
		}
		raw = stripped
	}
}

func hasSelectPrefix(text string) bool {
	const keyword = "SELECT"
	return len(text) >= len(keyword) && strings.EqualFold(text[:len(keyword)], keyword)
}
