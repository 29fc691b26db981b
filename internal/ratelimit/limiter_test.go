package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitAdmitsUnderLimitImmediately(t *testing.T) {
	limiter := New(5, time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed >= 100*time.Millisecond {
		t.Fatalf("expected 5 admissions to be immediate, took %v", elapsed)
	}
}

func TestWaitBlocksBeyondLimit(t *testing.T) {
	limiter := New(5, 300*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("expected sixth admission to wait out the window, took %v", elapsed)
	}
}

func TestWaitHonorsSlidingWindow(t *testing.T) {
	limiter := New(2, time.Second)
	clock := time.Unix(0, 0)
	limiter.now = func() time.Time { return clock }

	ctx := context.Background()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	clock = clock.Add(600 * time.Millisecond)
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// Window [t, t+1s] already has two admissions; the oldest expires at
	// t+1s, so after advancing past it the third call is immediate.
	clock = clock.Add(500 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- limiter.Wait(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected third admission once oldest call left the window")
	}
}

func TestWaitCancelable(t *testing.T) {
	limiter := New(1, time.Hour)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- limiter.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestResetClearsHistory(t *testing.T) {
	limiter := New(1, time.Hour)
	ctx := context.Background()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	limiter.Reset()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 100*time.Millisecond {
		t.Fatalf("expected immediate admission after reset, took %v", elapsed)
	}
}

func TestConcurrentCallersRespectLimit(t *testing.T) {
	const max = 3
	limiter := New(max, 200*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < max*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx); err != nil {
				t.Errorf("Wait failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Six admissions through a 3-per-200ms window need at least one window.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("expected concurrent callers to be throttled, took %v", elapsed)
	}
}
