package main

import (
	"fmt"
	"strings"
	"time"
)

func parseDateUTC(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", v, err)
	}
	return t.UTC(), nil
}

// optionalDate validates a date flag and returns nil when it is empty.
func optionalDate(v string) (*string, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	if _, err := parseDateUTC(v); err != nil {
		return nil, err
	}
	return &v, nil
}
