// Package ratelimit paces page fetches.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests with a token bucket and an optional minimum delay
// between consecutive requests.
type Limiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	rate        rate.Limit
	burst       int
	delay       time.Duration
	lastRequest time.Time
}

// NewLimiter creates a limiter. A non-positive rate disables the bucket.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		rate:    limit,
		burst:   burst,
	}
}

// Wait blocks until a request is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	if l.delay > 0 && !l.lastRequest.IsZero() {
		if wait := l.delay - time.Since(l.lastRequest); wait > 0 {
			l.mu.Unlock()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			l.mu.Lock()
		}
	}
	l.lastRequest = time.Now()
	l.mu.Unlock()
	return nil
}

// Allow reports whether a request may happen now, consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetDelay sets the minimum delay between requests.
func (l *Limiter) SetDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = delay
}

// SetRate updates the bucket rate and burst.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst < 1 {
		burst = 1
	}
	l.rate = rate.Limit(requestsPerSecond)
	l.burst = burst
	l.limiter.SetLimit(l.rate)
	l.limiter.SetBurst(burst)
}

// Stats returns limiter settings.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Rate:  float64(l.rate),
		Burst: l.burst,
		Delay: l.delay,
	}
}

// LimiterStats contains limiter settings.
type LimiterStats struct {
	Rate  float64       `json:"rate"`
	Burst int           `json:"burst"`
	Delay time.Duration `json:"delay"`
}

// AdaptiveLimiter slows down when the site starts failing and speeds back
// up when it recovers.
type AdaptiveLimiter struct {
	*Limiter
	mu           sync.Mutex
	minRate      float64
	maxRate      float64
	currentRate  float64
	errorCount   int
	successCount int
	windowSize   int
}

// NewAdaptiveLimiter creates an adaptive limiter starting at maxRate.
func NewAdaptiveLimiter(minRate, maxRate float64, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		Limiter:     NewLimiter(maxRate, burst),
		minRate:     minRate,
		maxRate:     maxRate,
		currentRate: maxRate,
		windowSize:  100,
	}
}

// SetWindow sets the number of results between adjustments.
func (a *AdaptiveLimiter) SetWindow(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > 0 {
		a.windowSize = n
	}
}

// RecordSuccess records a successful request.
func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.checkAndAdjust()
}

// RecordError records a throttled or failed request.
func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.checkAndAdjust()
}

// checkAndAdjust adjusts the rate based on the error ratio of the window.
func (a *AdaptiveLimiter) checkAndAdjust() {
	total := a.successCount + a.errorCount
	if total < a.windowSize {
		return
	}
	if a.maxRate <= 0 {
		a.successCount = 0
		a.errorCount = 0
		return
	}

	errorRate := float64(a.errorCount) / float64(total)

	if errorRate > 0.1 {
		a.currentRate = a.currentRate * 0.8
		if a.currentRate < a.minRate {
			a.currentRate = a.minRate
		}
	} else if errorRate < 0.01 {
		a.currentRate = a.currentRate * 1.1
		if a.currentRate > a.maxRate {
			a.currentRate = a.maxRate
		}
	}

	a.SetRate(a.currentRate, a.Stats().Burst)

	a.successCount = 0
	a.errorCount = 0
}

// CurrentRate returns the current rate.
func (a *AdaptiveLimiter) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
