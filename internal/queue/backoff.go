package queue

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 10 * time.Second
	backoffCap  = 10 * time.Minute
)

// BackoffDelay returns the redelivery delay before the given attempt.
// Attempt 1 is the first retry. Delay doubles per attempt with up to
// 25% random jitter, capped at ten minutes.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	delay += jitter
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
