package worker

import (
	"time"

	"resume-insights/internal/backoff"
	"resume-insights/internal/common"
)

// RetryPolicy decides what happens to a stage attempt that failed.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget per stage, first try included.
	MaxAttempts int
	// Backoff spaces out retry attempts.
	Backoff backoff.Strategy
}

// DefaultRetryPolicy allows three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     backoff.DefaultStrategy(),
	}
}

// Disposition reports whether the failed attempt should be retried and, if
// so, after what delay. Permanent errors and exhausted budgets both map to
// no retry.
func (p RetryPolicy) Disposition(err error, attempt int) (retry bool, delay time.Duration) {
	if common.Permanent(err) {
		return false, 0
	}
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	return true, p.Backoff.Delay(attempt)
}
