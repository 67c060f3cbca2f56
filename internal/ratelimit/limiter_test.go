package ratelimit

import (
	"context"
	"testing"
	"time"
)

func testLimiter(maxConcurrent int) *Limiter {
	return New(Config{
		MaxConcurrent: maxConcurrent,
		DelayMin:      time.Millisecond,
		DelayMax:      2 * time.Millisecond,
		Ceiling:       16 * time.Millisecond,
		Cooldown:      time.Hour,
	})
}

func TestAcquire_BoundsConcurrency(t *testing.T) {
	l := testLimiter(2)
	ctx := context.Background()

	rel1, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rel2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Third acquire must block until a release.
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(timeout); err == nil {
		t.Fatal("third acquire should have blocked")
	}

	rel1()
	rel3, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	rel3()
	rel2()
	// Double release must not free an extra permit.
	rel2()
	relA, _ := l.Acquire(ctx)
	relB, _ := l.Acquire(ctx)
	timeout2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if _, err := l.Acquire(timeout2); err == nil {
		t.Fatal("permit leaked through double release")
	}
	relA()
	relB()
}

func TestAcquire_HonorsCancellation(t *testing.T) {
	l := testLimiter(1)
	rel, _ := l.Acquire(context.Background())
	defer rel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}

func TestThrottled_EscalatesPerDomain(t *testing.T) {
	l := testLimiter(1)

	base := l.Delay("quiet.example.com")
	if base < time.Millisecond || base > 2*time.Millisecond {
		t.Fatalf("base delay = %v", base)
	}

	l.Throttled("noisy.example.com")
	d1 := l.Delay("noisy.example.com")
	if d1 != 4*time.Millisecond { // DelayMax doubled
		t.Fatalf("after 1 signal delay = %v; want 4ms", d1)
	}
	l.Throttled("noisy.example.com")
	if d := l.Delay("noisy.example.com"); d != 8*time.Millisecond {
		t.Fatalf("after 2 signals delay = %v; want 8ms", d)
	}

	// Unrelated domain stays at base pacing.
	if d := l.Delay("quiet.example.com"); d > 2*time.Millisecond {
		t.Fatalf("unrelated domain slowed down: %v", d)
	}
}

func TestThrottled_CapsAtCeiling(t *testing.T) {
	l := testLimiter(1)
	for i := 0; i < 10; i++ {
		l.Throttled("noisy.example.com")
	}
	if d := l.Delay("noisy.example.com"); d != 16*time.Millisecond {
		t.Fatalf("delay = %v; want ceiling 16ms", d)
	}
}

func TestThrottled_ResetsAfterCooldown(t *testing.T) {
	l := New(Config{
		MaxConcurrent: 1,
		DelayMin:      time.Millisecond,
		DelayMax:      2 * time.Millisecond,
		Ceiling:       16 * time.Millisecond,
		Cooldown:      10 * time.Minute,
	})
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Throttled("noisy.example.com")
	if d := l.Delay("noisy.example.com"); d != 4*time.Millisecond {
		t.Fatalf("delay = %v", d)
	}

	now = now.Add(11 * time.Minute)
	if d := l.Delay("noisy.example.com"); d > 2*time.Millisecond {
		t.Fatalf("delay after cooldown = %v; want base", d)
	}
}

func TestWait_HonorsCancellation(t *testing.T) {
	l := New(Config{
		MaxConcurrent: 1,
		DelayMin:      time.Hour,
		DelayMax:      time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	if err := l.Wait(ctx, "example.com"); err == nil {
		t.Fatal("expected cancellation error")
	}
}
