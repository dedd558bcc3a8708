package platform

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds the client's 429 retry loop. MaxAttempts counts every
// try of one request including the first; MaxElapsed caps the total time a
// single request may spend waiting out throttles.
type RetryPolicy struct {
	MaxAttempts    int
	MaxElapsed     time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64

	random func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    8,
		MaxElapsed:     5 * time.Minute,
		BaseDelay:      time.Second,
		MaxDelay:       time.Minute,
		JitterFraction: 0.2,
		random:         rand.Float64,
	}
}

// WithRandom fixes the jitter source. Tests use this to make backoff
// deterministic.
func (p RetryPolicy) WithRandom(randomFunc func() float64) RetryPolicy {
	p.random = randomFunc
	return p
}

// Backoff returns the wait before retry number attempt (1-based), used when
// the server sent no usable Retry-After.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	randFunc := p.random
	if randFunc == nil {
		randFunc = rand.Float64
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	jitter := p.JitterFraction
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}

	if attempt <= 0 {
		attempt = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > ceiling {
		delay = ceiling
	}
	if jitter == 0 {
		return delay
	}

	spread := float64(delay) * jitter
	adjusted := float64(delay) - spread + 2*spread*randFunc()
	if adjusted < 0 {
		adjusted = 0
	}
	if time.Duration(adjusted) > ceiling {
		return ceiling
	}
	return time.Duration(adjusted)
}
