package utils

import (
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------

// ParseFloat converts a numeric wire field to float64, returning 0 for empty
// or malformed values. Feed rows routinely carry blank columns.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// -----------------------------------------------------------------------------

// ParseInt converts a numeric wire field to int, returning 0 for empty or
// malformed values.
func ParseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// -----------------------------------------------------------------------------

// MaskAPIKey hides credential material embedded in endpoint strings before
// they reach logs or status responses.
func MaskAPIKey(endpoint string) string {
	for _, marker := range []string{"api_key=", "apikey=", "token=", "password="} {
		idx := strings.Index(strings.ToLower(endpoint), marker)
		if idx < 0 {
			continue
		}
		start := idx + len(marker)
		end := start
		for end < len(endpoint) && endpoint[end] != '&' && endpoint[end] != ',' {
			end++
		}
		endpoint = endpoint[:start] + "****" + endpoint[end:]
	}
	return endpoint
}

// -----------------------------------------------------------------------------

// SplitRow splits one feed row on commas after trimming the line terminators.
// Rows arrive "\n"-terminated and may keep a trailing "\r".
func SplitRow(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	return strings.Split(line, ",")
}
