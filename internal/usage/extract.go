package usage

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// percentWindow is the header line plus the two lines after it.
	percentWindow = 3
	// sessionResetWindow matches percentWindow; the session reset sits under the bar.
	sessionResetWindow = 3
	// weeklyResetWindow reaches further because the weekly reset often wraps.
	weeklyResetWindow = 5
)

var (
	percentPattern      = regexp.MustCompile(`(\d+)\s*%`)
	sessionResetPattern = regexp.MustCompile(`(?i)resets?\s*(\d+[:\d]*\s*[ap]m[^)\n]*\)?)`)
	weeklyResetPattern  = regexp.MustCompile(`(?i)resets?\s*(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[^)\n]+\)?`)
	resetPrefixPattern  = regexp.MustCompile(`(?i)^resets?\s*`)
)

// section ties a header predicate to the extractors that fill its fields.
type section struct {
	name   string
	header func(lower string) bool
	apply  func(lines []string, at int, record *Record)
}

var sections = []section{
	{
		name:   "session",
		header: containsAll("current session"),
		apply: func(lines []string, at int, record *Record) {
			if value, ok := percentAt(lines, at); ok {
				record.SessionPercent = value
			}
			if value, ok := sessionResetAt(lines, at); ok {
				record.SessionReset = value
			}
		},
	},
	{
		name:   "weekly",
		header: containsAll("current week", "all models"),
		apply: func(lines []string, at int, record *Record) {
			if value, ok := percentAt(lines, at); ok {
				record.WeeklyPercent = value
			}
			if value, ok := weeklyResetAt(lines, at); ok {
				record.WeeklyReset = value
			}
		},
	},
	{
		name:   "sonnet",
		header: containsAll("sonnet only"),
		apply: func(lines []string, at int, record *Record) {
			if value, ok := percentAt(lines, at); ok {
				record.SonnetPercent = value
			}
		},
	},
}

func containsAll(phrases ...string) func(string) bool {
	return func(lower string) bool {
		for _, phrase := range phrases {
			if !strings.Contains(lower, phrase) {
				return false
			}
		}
		return true
	}
}

// window returns lines[at:at+size], clipped to the slice bounds.
func window(lines []string, at, size int) []string {
	if at < 0 || at >= len(lines) {
		return nil
	}
	end := at + size
	if end > len(lines) {
		end = len(lines)
	}
	return lines[at:end]
}

// percentAt returns the first "<digits>%" at or after the header line.
func percentAt(lines []string, at int) (int, bool) {
	for _, line := range window(lines, at, percentWindow) {
		match := percentPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		value, err := strconv.Atoi(match[1])
		if err != nil {
			// Too large for int; keep looking rather than report garbage.
			continue
		}
		return value, true
	}
	return 0, false
}

// sessionResetAt returns the clock time following "Resets" and the rest of the
// line up to a closing paren, e.g. "3:00pm (America/NY)" or "5:59pm PST".
func sessionResetAt(lines []string, at int) (string, bool) {
	for _, line := range window(lines, at, sessionResetWindow) {
		match := sessionResetPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		return strings.TrimSpace(match[1]), true
	}
	return "", false
}

// weeklyResetAt returns the date following "Resets", e.g. "Jan 5, 2025".
func weeklyResetAt(lines []string, at int) (string, bool) {
	for _, line := range window(lines, at, weeklyResetWindow) {
		match := weeklyResetPattern.FindString(line)
		if match == "" {
			continue
		}
		return strings.TrimSpace(resetPrefixPattern.ReplaceAllString(match, "")), true
	}
	return "", false
}
