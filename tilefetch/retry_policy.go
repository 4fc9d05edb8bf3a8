package tilefetch

import (
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy picks the wait before each retry.
// Delays[i] is the base delay after the (i+1)th failed attempt; the last entry repeats.
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
	// Jitter is the width of the random window added on top of each base delay
	Jitter   time.Duration
	MaxDelay time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

func NewRetryPolicy(maxAttempts int, delays []time.Duration, jitter, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		Delays:      delays,
		Jitter:      jitter,
		MaxDelay:    maxDelay,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait after failed attempt number failedAttempt (0-based)
func (p *RetryPolicy) Delay(failedAttempt int) time.Duration {
	var delay time.Duration
	if len(p.Delays) > 0 {
		i := failedAttempt
		if i >= len(p.Delays) {
			i = len(p.Delays) - 1
		}
		delay = p.Delays[i]
	}

	if p.Jitter > 0 {
		p.mu.Lock()
		delay += time.Duration(p.rand.Int63n(int64(p.Jitter) + 1))
		p.mu.Unlock()
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay
}
