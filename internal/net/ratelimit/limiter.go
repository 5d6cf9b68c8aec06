package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests with a concurrency bound and a token
// bucket. A single Limiter is shared by every request of a process.
type Limiter struct {
	slots  chan struct{}
	bucket *rate.Limiter

	mu       sync.Mutex
	inFlight int
	peak     int
}

// NewLimiter creates a limiter allowing maxConcurrent requests in flight and
// rps new requests per second. A burst of zero defaults to ceil(rps).
func NewLimiter(maxConcurrent int, rps float64, burst int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
		if burst < 1 {
			burst = 1
		}
	}
	return &Limiter{
		slots:  make(chan struct{}, maxConcurrent),
		bucket: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Acquire blocks until both a concurrency slot and a token are available or
// ctx is done. The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := l.bucket.Wait(ctx); err != nil {
		<-l.slots
		return nil, err
	}

	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.inFlight--
			l.mu.Unlock()
			<-l.slots
		})
	}, nil
}

// Stats returns a snapshot of the limiter.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	inFlight, peak := l.inFlight, l.peak
	l.mu.Unlock()

	reservation := l.bucket.Reserve()
	delay := reservation.Delay()
	reservation.Cancel() // Cancel the reservation since we're just checking

	return LimiterStats{
		MaxConcurrent:   cap(l.slots),
		InFlight:        inFlight,
		PeakInFlight:    peak,
		RPS:             float64(l.bucket.Limit()),
		Burst:           l.bucket.Burst(),
		TokensAvailable: l.bucket.Tokens(),
		Delay:           delay,
	}
}

// LimiterStats represents a point-in-time view of a Limiter
type LimiterStats struct {
	MaxConcurrent   int           `json:"max_concurrent"`
	InFlight        int           `json:"in_flight"`
	PeakInFlight    int           `json:"peak_in_flight"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

// IsThrottled reports whether the next request would wait for a token.
func (s LimiterStats) IsThrottled() bool {
	return s.Delay > 0
}
