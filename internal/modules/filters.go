package modules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// threshold is a size or age limit. A negative limit matches values at or
// below it, a positive one values at or above it.
type threshold struct {
	value uint64
	below bool
}

func (t threshold) match(v uint64) bool {
	if t.below {
		return v <= t.value
	}
	return v >= t.value
}

// splitNumber splits "<n><unit>" with an optional leading minus
func splitNumber(s string) (num string, unit string, negative bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		negative = true
		s = rest
	}

	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			num = s[:i+1]
		} else {
			unit = strings.TrimSpace(s[i:])
			break
		}
	}
	return num, unit, negative
}

// parseSize parses a size like "10m" or "-1g" in bytes. Units are binary
// multiples; no unit means bytes.
func parseSize(s string) (threshold, error) {
	if strings.TrimSpace(s) == "" {
		return threshold{}, fmt.Errorf("empty size")
	}

	numPart, unitPart, negative := splitNumber(s)

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return threshold{}, fmt.Errorf("invalid number: %w", err)
	}

	var multiplier float64
	switch strings.ToUpper(unitPart) {
	case "", "B":
		multiplier = 1
	case "K", "KB", "KIB":
		multiplier = 1024
	case "M", "MB", "MIB":
		multiplier = 1024 * 1024
	case "G", "GB", "GIB":
		multiplier = 1024 * 1024 * 1024
	case "T", "TB", "TIB":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return threshold{}, fmt.Errorf("unknown unit: %s", unitPart)
	}

	return threshold{value: uint64(num * multiplier), below: negative}, nil
}

// parseAge parses an age like "2d" or "-4w" in seconds. No unit means
// seconds.
func parseAge(s string) (threshold, error) {
	if strings.TrimSpace(s) == "" {
		return threshold{}, fmt.Errorf("empty age")
	}

	numPart, unitPart, negative := splitNumber(s)

	num, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return threshold{}, fmt.Errorf("invalid number: %w", err)
	}

	var unit time.Duration
	switch strings.ToLower(unitPart) {
	case "", "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	default:
		return threshold{}, fmt.Errorf("unknown unit: %s", unitPart)
	}

	return threshold{value: num * uint64(unit/time.Second), below: negative}, nil
}
