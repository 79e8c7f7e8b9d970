package scorm

import (
	"regexp"
	"strconv"
)

// SCORM 1.2 CMITimespan: up to four hour digits, then minutes, seconds
// and an optional centisecond fraction.
var legacyDurationRe = regexp.MustCompile(`^(\d{1,4}):([0-5]\d):([0-5]\d)(\.\d{1,2})?$`)

// SCORM 2004 timeinterval: a restricted ISO-8601 duration. Year and month
// groups are captured so their presence can be rejected.
var modernDurationRe = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration converts a CMI time value to seconds. The legacy
// HHHH:MM:SS.ff form is tried first, then the ISO-8601 form. Durations
// carrying year or month components have no fixed length in seconds and
// resolve to nil rather than a guess. Empty or unmatched input is nil.
func ParseDuration(raw string) *float64 {
	if raw == "" {
		return nil
	}
	if secs, ok := parseLegacyDuration(raw); ok {
		return &secs
	}
	if secs, ok := parseModernDuration(raw); ok {
		return &secs
	}
	return nil
}

func parseLegacyDuration(raw string) (float64, bool) {
	m := legacyDurationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)
	var fraction float64
	if m[4] != "" {
		fraction, _ = strconv.ParseFloat("0"+m[4], 64)
	}

	return hours*3600 + minutes*60 + seconds + fraction, true
}

func parseModernDuration(raw string) (float64, bool) {
	m := modernDurationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	// "P" with no components at all matches the pattern but carries no
	// duration; treat it as unparseable.
	if m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "" && m[6] == "" {
		return 0, false
	}
	// Calendar components are ambiguous; reject rather than guess.
	if m[1] != "" || m[2] != "" {
		return 0, false
	}

	var secs float64
	if m[3] != "" {
		days, _ := strconv.ParseFloat(m[3], 64)
		secs += days * 86400
	}
	if m[4] != "" {
		hours, _ := strconv.ParseFloat(m[4], 64)
		secs += hours * 3600
	}
	if m[5] != "" {
		minutes, _ := strconv.ParseFloat(m[5], 64)
		secs += minutes * 60
	}
	if m[6] != "" {
		seconds, _ := strconv.ParseFloat(m[6], 64)
		secs += seconds
	}
	return secs, true
}
