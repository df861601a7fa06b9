package retry

import (
	"math/rand/v2"
	"time"
)

// Default backoff constants.
const (
	DefaultBaseDelay = 800 * time.Millisecond
	DefaultMaxDelay  = 8 * time.Second
)

// Backoff maps an attempt number (starting at 1) to the wait before the next attempt.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential implements capped exponential backoff with optional jitter.
type Exponential struct {
	// base is the delay after the first failed attempt
	base time.Duration

	// max caps every delay; jitter narrows as delays approach it
	max time.Duration

	// jitter spreads delays by +/- jitter*d (0.0-1.0, 0 disables)
	jitter float64

	// jitterFunc provides random values [0, 1) for jitter calculation
	jitterFunc func() float64
}

// BackoffOption is a functional option for configuring Exponential.
type BackoffOption func(*Exponential)

// WithBaseDelay sets the delay after the first failed attempt.
func WithBaseDelay(d time.Duration) BackoffOption {
	return func(b *Exponential) {
		b.base = d
	}
}

// WithMaxDelay sets the cap on any single delay.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *Exponential) {
		b.max = d
	}
}

// WithJitter sets the jitter factor (0.0-1.0).
func WithJitter(j float64) BackoffOption {
	return func(b *Exponential) {
		switch {
		case j < 0:
			j = 0
		case j > 1:
			j = 1
		}
		b.jitter = j
	}
}

// WithJitterFunc sets a custom function for generating random jitter values.
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *Exponential) {
		b.jitterFunc = f
	}
}

// NewExponential creates an exponential backoff with base 800ms, cap 8s and no jitter.
func NewExponential(opts ...BackoffOption) *Exponential {
	b := &Exponential{
		base: DefaultBaseDelay,
		max:  DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.base < 0 {
		b.base = 0
	}
	if b.max < 0 {
		b.max = 0
	}
	return b
}

// Delay returns min(max, base*2^(attempt-1)), spread by jitter when enabled.
// Attempts below 1 are treated as 1.
func (b *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.base
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}

	// The spread is narrowed near the cap so it stays symmetric around d;
	// at the cap there is no jitter at all.
	j := b.jitter
	if d > 0 {
		if headroom := float64(b.max-d) / float64(d); headroom < j {
			j = headroom
		}
	}
	if j > 0 && d > 0 {
		jitterFunc := b.jitterFunc
		if jitterFunc == nil {
			jitterFunc = rand.Float64
		}
		offset := (jitterFunc() - 0.5) * 2.0 // [0,1) -> [-1,1)
		d = time.Duration(float64(d) * (1.0 + j*offset))
		if d < 0 {
			d = 0
		}
	}

	return d
}
