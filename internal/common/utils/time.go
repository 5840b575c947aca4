package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Clock returns the current time. Components take a Clock so tests can
// control cooldown windows and expiry without sleeping.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// ParseDuration parses a duration string with support for additional time units.
//
// Extends the standard Go time.ParseDuration with support for days ("d") and
// weeks ("w") units. Falls back to standard parsing for all other formats.
//
// Examples:
//
//	ParseDuration("1d")    // 24 hours
//	ParseDuration("2w")    // 336 hours (14 days)
//	ParseDuration("1h30m") // 1.5 hours (standard Go format)
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	if n, err := fmt.Sscanf(s, "%dd", &days); err == nil && n == 1 {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	var weeks int
	if n, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && n == 1 {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}

// InvalidInterval is returned by ParseInterval for strings it cannot read.
const InvalidInterval time.Duration = -1

var intervalPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseInterval parses the interval strings used by library settings documents:
// a non-negative integer followed by one of s, m, h or d ("30s", "15m", "2h", "1d").
//
// Unlike ParseDuration it accepts exactly one unit, and it reports failure
// through the InvalidInterval sentinel so callers can ignore the field and keep
// their current value.
func ParseInterval(s string) time.Duration {
	match := intervalPattern.FindStringSubmatch(s)
	if match == nil {
		return InvalidInterval
	}

	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return InvalidInterval
	}

	var unit time.Duration
	switch match[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	return time.Duration(value) * unit
}

// FormatInterval renders a duration in the single-unit form ParseInterval reads,
// picking the largest unit that divides it exactly.
func FormatInterval(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
