package pace

import (
	"context"
	"testing"
	"time"
)

func TestNextWithinBounds(t *testing.T) {
	t.Parallel()
	s := New(10*time.Millisecond, 30*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := s.next()
		if d < 10*time.Millisecond || d > 30*time.Millisecond {
			t.Fatalf("next() = %v, want within [10ms, 30ms]", d)
		}
	}
}

func TestNormalizedBounds(t *testing.T) {
	t.Parallel()
	s := New(30*time.Millisecond, 10*time.Millisecond)
	if s.min != 10*time.Millisecond || s.max != 30*time.Millisecond {
		t.Fatalf("bounds not swapped: min=%v max=%v", s.min, s.max)
	}

	s = New(-5*time.Millisecond, -1*time.Millisecond)
	if s.min != 0 || s.max != 0 {
		t.Fatalf("negative bounds not clamped: min=%v max=%v", s.min, s.max)
	}
}

func TestZeroValueNeverSleeps(t *testing.T) {
	t.Parallel()
	var s Sleeper
	start := time.Now()
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if took := time.Since(start); took > 50*time.Millisecond {
		t.Fatalf("zero-value Wait took %v", took)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()
	s := New(5*time.Second, 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected context error from cancelled Wait")
	}
}
