package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeUnitPattern = regexp.MustCompile(`(\d+)([dhms])`)

// ParseTimeRef parses a time bound for filtering records. It accepts an
// absolute timestamp, a bare epoch-seconds value, or a relative duration
// that is subtracted from now (e.g. "1h", "30m", "1d2h").
func ParseTimeRef(s string) (time.Time, error) {
	return parseTimeRefAt(s, time.Now())
}

func parseTimeRefAt(s string, now time.Time) (time.Time, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return time.Time{}, fmt.Errorf("time reference is empty")
	}

	if t, err := parseAbsoluteTime(input); err == nil {
		return t, nil
	}

	if secs, err := strconv.ParseInt(input, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}

	d, err := parseRelativeDuration(input)
	if err != nil {
		return time.Time{}, err
	}

	return now.Add(-d), nil
}

func parseAbsoluteTime(input string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		DefaultTimestampFormat,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid absolute time: %s", input)
}

func parseRelativeDuration(input string) (time.Duration, error) {
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}

	matches := relativeUnitPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid relative duration: %s", input)
	}

	totalLen := 0
	total := time.Duration(0)

	for _, match := range matches {
		totalLen += match[1] - match[0]
		value, err := strconv.ParseInt(input[match[2]:match[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid relative duration: %s", input)
		}

		switch input[match[4]:match[5]] {
		case "d":
			total += 24 * time.Hour * time.Duration(value)
		case "h":
			total += time.Hour * time.Duration(value)
		case "m":
			total += time.Minute * time.Duration(value)
		case "s":
			total += time.Second * time.Duration(value)
		}
	}

	// Reject trailing garbage like "1hx".
	if totalLen != len(input) {
		return 0, fmt.Errorf("invalid relative duration: %s", input)
	}

	return total, nil
}
