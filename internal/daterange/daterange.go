// Package daterange resolves relative and explicit date-range tokens into
// concrete [start, end] windows.
package daterange

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Named ranges.
const (
	Today  = "today"
	Last7  = "last7"
	Last30 = "last30"
	Custom = "custom"
)

var relativePattern = regexp.MustCompile(`(?i)^last(\d+)(m|h|d)$`)

// Spec is a date range request as carried by queries and rule conditions.
type Spec struct {
	Range string `json:"range,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Window is a resolved, inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside w.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Validate rejects a custom range whose bounds are missing, unparsable or not ordered.
// Unknown range tokens are not errors; Resolve falls back to last30 for them.
func (s Spec) Validate() error {
	if s.Range != Custom {
		return nil
	}

	start, err := ParseTime(s.Start)
	if err != nil {
		return errors.New("custom range requires a valid start")
	}
	end, err := ParseTime(s.End)
	if err != nil {
		return errors.New("custom range requires a valid end")
	}
	if !end.After(start) {
		return errors.New("custom range requires start before end")
	}

	return nil
}

// Resolve turns s into a window relative to now. Missing or invalid input resolves to last30.
func Resolve(s Spec, now time.Time) Window {
	rng := s.Range
	if rng == "" {
		rng = Last30
	}

	if m := relativePattern.FindStringSubmatch(rng); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			var unit time.Duration
			switch strings.ToLower(m[2]) {
			case "m":
				unit = time.Minute
			case "h":
				unit = time.Hour
			default:
				unit = 24 * time.Hour
			}

			return Window{Start: now.Add(-time.Duration(n) * unit), End: now}
		}
	}

	switch rng {
	case Today:
		start := startOfDay(now)
		return Window{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Millisecond)}
	case Last7:
		return Window{Start: startOfDay(now.AddDate(0, 0, -7)), End: now}
	case Custom:
		if s.Validate() == nil {
			start, _ := ParseTime(s.Start)
			end, _ := ParseTime(s.End)

			return Window{Start: start, End: end}
		}
	}

	return Window{Start: startOfDay(now.AddDate(0, 0, -30)), End: now}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// layouts accepted by ParseTime, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime parses the date formats accepted on ingestion and in range bounds.
// Zone-less values are interpreted as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.New("unrecognized date format")
}
