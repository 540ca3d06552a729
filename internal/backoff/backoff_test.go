package backoff

import (
	"testing"
	"time"
)

func TestConstant(t *testing.T) {
	t.Parallel()
	c := NewConstant(5 * time.Second)

	for _, attempt := range []int{1, 2, 10} {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	t.Parallel()
	e := NewExponential(2*time.Second, time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{10, time.Minute}, // capped
	}

	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialNoCap(t *testing.T) {
	t.Parallel()
	e := NewExponential(time.Second, 0)

	if got := e.Delay(6); got != 32*time.Second {
		t.Errorf("Delay(6) = %v, want 32s", got)
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	t.Parallel()
	j := NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		for range 50 {
			d := j.Delay(attempt)
			if d < 0 {
				t.Fatalf("Delay(%d) = %v, want >= 0", attempt, d)
			}
			if d > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want <= cap", attempt, d)
			}
		}
	}
}
