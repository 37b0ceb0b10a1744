package utils

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff produces exponentially growing reconnection delays with optional
// jitter, bounded by a maximum.
type Backoff struct {
	mu       sync.Mutex
	min      time.Duration
	max      time.Duration
	factor   float64
	jitter   float64
	attempts int64
}

type BackoffOption func(*Backoff)

func WithMin(min time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.min = min
	}
}

func WithMax(max time.Duration) BackoffOption {
	return func(b *Backoff) {
		b.max = max
	}
}

// WithJitter sets the randomization factor, in [0, 1].
func WithJitter(jitter float64) BackoffOption {
	return func(b *Backoff) {
		if jitter >= 0 && jitter < 1 {
			b.jitter = jitter
		}
	}
}

func NewBackoff(opts ...BackoffOption) *Backoff {
	b := &Backoff{
		min:    100 * time.Millisecond,
		max:    10 * time.Second,
		factor: 2,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Duration returns the delay for the next attempt and advances the counter.
func (b *Backoff) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	ms := float64(b.min) * math.Pow(b.factor, float64(b.attempts))
	b.attempts++
	if b.jitter > 0 {
		deviation := rand.Float64() * b.jitter * ms
		if (int64(math.Floor(rand.Float64()*10)) & 1) == 0 {
			ms = ms - deviation
		} else {
			ms = ms + deviation
		}
	}
	if ms > float64(b.max) {
		ms = float64(b.max)
	}
	if ms < float64(b.min) {
		ms = float64(b.min)
	}
	return time.Duration(ms)
}

func (b *Backoff) Attempts() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.attempts
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts = 0
}

func (b *Backoff) SetMin(min time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.min = min
}

func (b *Backoff) SetMax(max time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.max = max
}

func (b *Backoff) SetJitter(jitter float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if jitter >= 0 && jitter < 1 {
		b.jitter = jitter
	}
}
