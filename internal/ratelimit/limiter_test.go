package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		burst     int
		wantBurst int
	}{
		{"normal", 10, 5, 5},
		{"zero burst", 10, 0, 1},
		{"unlimited", 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.rate, tt.burst)
			if l.Stats().Burst != tt.wantBurst {
				t.Errorf("Burst = %d, want %d", l.Stats().Burst, tt.wantBurst)
			}
		})
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("Allow() denied request %d on an unlimited limiter", i)
		}
	}
}

func TestLimiter_Allow_Burst(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("Allow() should return true for burst request %d", i+1)
		}
	}
	if l.Allow() {
		t.Error("Allow() should return false after burst exhausted")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(1000, 10)

	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(0.1, 1)
	l.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() should return error for cancelled context")
	}
}

func TestLimiter_Wait_WithDelay(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetDelay(50 * time.Millisecond)
	ctx := context.Background()

	_ = l.Wait(ctx)
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want at least the delay", elapsed)
	}
}

func TestLimiter_SetRate(t *testing.T) {
	l := NewLimiter(10, 5)
	l.SetRate(20, 0)

	s := l.Stats()
	if s.Rate != 20 || s.Burst != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(10000, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Wait(ctx)
		}()
	}
	wg.Wait()
}

// =============================================================================
// AdaptiveLimiter Tests
// =============================================================================

func TestNewAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)

	if a.CurrentRate() != 100.0 {
		t.Errorf("CurrentRate() = %v, want 100.0 (starts at max)", a.CurrentRate())
	}
	if a.windowSize != 100 {
		t.Errorf("windowSize = %d, want 100", a.windowSize)
	}
}

func TestAdaptiveLimiter_SlowDown(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)
	a.SetWindow(10)

	for i := 0; i < 5; i++ {
		a.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		a.RecordError()
	}

	if rate := a.CurrentRate(); rate != 80.0 {
		t.Errorf("CurrentRate() = %v, want 80.0 after a failing window", rate)
	}
	if a.Stats().Rate != 80.0 {
		t.Errorf("limiter rate = %v, want 80.0", a.Stats().Rate)
	}
}

func TestAdaptiveLimiter_SpeedUp(t *testing.T) {
	a := NewAdaptiveLimiter(1.0, 100.0, 10)
	a.SetWindow(10)
	a.currentRate = 50.0
	a.SetRate(50.0, 10)

	for i := 0; i < 10; i++ {
		a.RecordSuccess()
	}

	if rate := a.CurrentRate(); rate <= 50.0 {
		t.Errorf("CurrentRate() = %v, should be greater than 50.0 after successes", rate)
	}
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(10.0, 100.0, 10)
	a.SetWindow(10)
	a.currentRate = 11.0

	for i := 0; i < 10; i++ {
		a.RecordError()
	}
	if rate := a.CurrentRate(); rate != 10.0 {
		t.Errorf("CurrentRate() = %v, should stop at minRate", rate)
	}

	b := NewAdaptiveLimiter(1.0, 100.0, 10)
	b.SetWindow(10)
	for i := 0; i < 10; i++ {
		b.RecordSuccess()
	}
	if rate := b.CurrentRate(); rate != 100.0 {
		t.Errorf("CurrentRate() = %v, should stop at maxRate", rate)
	}
}

func TestAdaptiveLimiter_UnlimitedStaysUnlimited(t *testing.T) {
	a := NewAdaptiveLimiter(0, 0, 1)
	a.SetWindow(2)

	a.RecordError()
	a.RecordError()

	if !a.Allow() || !a.Allow() {
		t.Error("an unlimited limiter should never throttle")
	}
}
