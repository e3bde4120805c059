package transport

import "time"

// Backoff computes retry delays for a queue of outbound envelopes: a
// 5xx (or connection) failure retries with exponential growth off a
// 60s floor, capped at 300s; a 4xx failure never retries.
type Backoff struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultBackoff matches the queue's original send-retry policy: 60s
// floor, 300s cap, 10 retries after the first attempt.
func DefaultBackoff() Backoff {
	return Backoff{MinDelay: 60 * time.Second, MaxDelay: 300 * time.Second, MaxRetries: 10}
}

// ShouldRetry reports whether err (from a PutEnvelope call) warrants
// another attempt and, if so, the delay to wait before it.
func (b Backoff) ShouldRetry(err error, retryCount int) (time.Duration, bool) {
	if retryCount >= b.MaxRetries {
		return 0, false
	}
	se, ok := err.(*StatusError)
	if ok && se.Code >= 400 && se.Code < 500 {
		return 0, false
	}
	return b.Delay(retryCount), true
}

// Delay returns the backoff delay for the given retry attempt (0-indexed),
// doubling from MinDelay and never exceeding MaxDelay.
func (b Backoff) Delay(retryCount int) time.Duration {
	d := b.MinDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	return d
}
