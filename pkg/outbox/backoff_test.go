package outbox

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	limit := 30 * time.Second
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 0},
		{attempts: 1, want: time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 5, want: 16 * time.Second},
		{attempts: 6, want: limit},
		{attempts: 40, want: limit},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempts, limit); got != tc.want {
			t.Fatalf("attempts=%d: want %s got %s", tc.attempts, tc.want, got)
		}
	}
}

func TestJitter(t *testing.T) {
	t.Parallel()

	limit := 200 * time.Millisecond
	a := jitter(rand.New(rand.NewSource(7)), limit)
	b := jitter(rand.New(rand.NewSource(7)), limit)
	if a != b {
		t.Fatalf("same seed gave %s and %s", a, b)
	}
	if a < 0 || a > limit {
		t.Fatalf("jitter out of range: %s", a)
	}
	if got := jitter(nil, limit); got != 0 {
		t.Fatalf("nil rand: got %s", got)
	}
}

func TestTruncateError(t *testing.T) {
	t.Parallel()

	if got := truncateError(nil, 10); got != "" {
		t.Fatalf("nil error: got %q", got)
	}
	if got := truncateError(errors.New("snapshot rejected"), 8); got != "snapshot" {
		t.Fatalf("got %q", got)
	}
	// "é" is two bytes; a cut through it drops the partial rune.
	if got := truncateError(errors.New("café"), 4); got != "caf" {
		t.Fatalf("got %q", got)
	}
}
