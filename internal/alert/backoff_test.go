package alert

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 5 * time.Second
	max := 2 * time.Minute

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 80 * time.Second},
		{5, 2 * time.Minute}, // capped
		{10, 2 * time.Minute},
		{40, 2 * time.Minute}, // shift guard
		{-1, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(base, max, tt.attempts); got != tt.want {
			t.Errorf("backoff(%v, %v, %d) = %v, want %v", base, max, tt.attempts, got, tt.want)
		}
	}
}
