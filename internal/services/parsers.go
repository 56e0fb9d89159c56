package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	timePattern  = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})\s*(am|pm|a\.m\.|p\.m\.)?$`)

	// Accepted date layouts, tried in order. Single-digit day and month
	// are allowed in every layout.
	dateLayouts = []string{"2-1-2006", "2/1/2006", "2006-1-2", "2.1.2006"}

	cancelWords      = wordSet("cancel", "stop", "exit")
	affirmativeWords = wordSet("yes", "y", "ok", "confirm")
	skipEmailWords   = wordSet("skip", "no", "na", "none", "")
	noNotesWords     = wordSet("no", "na", "none", "")
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, input string) bool {
	_, ok := set[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// IsCancelKeyword reports whether input asks to abandon the conversation.
func IsCancelKeyword(input string) bool {
	return inSet(cancelWords, input)
}

// IsAffirmative reports whether input confirms the booking.
func IsAffirmative(input string) bool {
	return inSet(affirmativeWords, input)
}

// ParseName accepts any name of at least two characters.
func ParseName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if utf8.RuneCountInString(name) < 2 {
		return "", ErrTooShort
	}
	return name, nil
}

// ParseMobile extracts a local 10-digit mobile number, ignoring spaces and
// punctuation.
func ParseMobile(input string) (string, error) {
	digits := digitsOnly(input)
	if len(digits) != localNumberLength {
		return "", ErrInvalidFormat
	}
	return digits, nil
}

// ParseEmail returns "" for the skip keywords and the trimmed address
// otherwise.
func ParseEmail(input string) (string, error) {
	if inSet(skipEmailWords, input) {
		return "", nil
	}
	email := strings.TrimSpace(input)
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidFormat
	}
	return email, nil
}

// ParseSelection parses a 1-based option number in [1, count].
func ParseSelection(input string, count int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrInvalidFormat
	}
	if n < 1 || n > count {
		return 0, ErrOutOfRange
	}
	return n, nil
}

// ParseMultiSelection parses a comma-separated list of option numbers, each
// in [1, count]. A single bad token rejects the whole input. Repeated
// numbers are kept once, in first-seen order.
func ParseMultiSelection(input string, count int) ([]int, error) {
	tokens := strings.Split(input, ",")
	seen := make(map[int]bool, len(tokens))
	var out []int
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return nil, ErrInvalidFormat
		}
		if n < 1 || n > count {
			return nil, ErrOutOfRange
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// ParseDate parses a calendar date in the location of today and rejects
// dates before today.
func ParseDate(input string, today time.Time) (time.Time, error) {
	value := strings.TrimSpace(input)
	for _, layout := range dateLayouts {
		d, err := time.ParseInLocation(layout, value, today.Location())
		if err != nil {
			continue
		}
		if d.Before(startOfDay(today)) {
			return time.Time{}, ErrPastDate
		}
		return d, nil
	}
	return time.Time{}, ErrInvalidFormat
}

// ParseClock parses "HH:MM" (24-hour) or "HH:MM am/pm" (12-hour) and
// returns the 24-hour hour and minute.
func ParseClock(input string) (hour, minute int, err error) {
	m := timePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(input)))
	if m == nil {
		return 0, 0, ErrInvalidFormat
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if minute > 59 {
		return 0, 0, ErrOutOfRange
	}

	switch strings.ReplaceAll(m[3], ".", "") {
	case "":
		if hour > 23 {
			return 0, 0, ErrOutOfRange
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, ErrOutOfRange
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, ErrOutOfRange
		}
		if hour != 12 {
			hour += 12
		}
	}
	return hour, minute, nil
}

// ParseNotes maps the "no notes" keywords to "".
func ParseNotes(input string) string {
	if inSet(noNotesWords, input) {
		return ""
	}
	return strings.TrimSpace(input)
}

// CombineDateTime merges a YYYY-MM-DD date with a wall-clock time in loc.
func CombineDateTime(date string, hour, minute int, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
