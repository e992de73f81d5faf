package services

import (
	"strings"
	"time"

	"github.com/iota-uz/iota-talent/pkg/constants"
)

// normalizeDateUTC truncates t to its UTC calendar day.
func normalizeDateUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns the UTC day.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, newValidationError(field, "is required")
	}
	if t, err := time.Parse(constants.DateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return normalizeDateUTC(t), nil
	}
	return time.Time{}, newValidationError(field, "invalid date %q, expected YYYY-MM-DD", raw)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(constants.DateLayout)
}
