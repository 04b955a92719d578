package workflow

import (
	"math/rand"
	"time"
)

// backoff policy: exponential with full jitter, capped. No ecosystem
// backoff library appears anywhere in the retrieved corpus, so this is a
// deliberate, documented stdlib implementation (see DESIGN.md).
const (
	initialBackoff = 500 * time.Millisecond
	backoffFactor  = 2.0
	maxBackoff     = 30 * time.Second
	maxAttempts    = 5
)

// nextBackoff returns the delay before retry attempt n (1-indexed), with
// full jitter: a uniform random delay in [0, cap].
func nextBackoff(attempt int) time.Duration {
	d := float64(initialBackoff)
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
	}
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
