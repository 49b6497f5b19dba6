package poller

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func neverStop(context.Context, int) bool { return false }

// TestPoller_StopBeforeStart verifies that calling Stop() on a poller
// that was never started does not panic and closes Done.
func TestPoller_StopBeforeStart(t *testing.T) {
	p := New(time.Minute, neverStop, testLogger())

	p.Stop()

	select {
	case <-p.Done():
	default:
		t.Error("expected Done to be closed after Stop()")
	}
}

// TestPoller_StopTwice verifies that Stop() is idempotent.
func TestPoller_StopTwice(t *testing.T) {
	p := New(time.Minute, neverStop, testLogger())
	p.Start(context.Background())

	p.Stop()
	p.Stop()
}

// TestPoller_StartTwice verifies that a second Start() does not spawn a
// second loop.
func TestPoller_StartTwice(t *testing.T) {
	var calls atomic.Int32
	p := New(5*time.Millisecond, func(ctx context.Context, attempt int) bool {
		calls.Add(1)
		return attempt >= 3
	}, testLogger())

	p.Start(context.Background())
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
	p.Stop()

	if got := calls.Load(); got != 3 {
		t.Errorf("tick called %d times, want 3", got)
	}
}

// TestPoller_StopBeforeStartThenStart verifies that Start after Stop is a no-op.
func TestPoller_StopBeforeStartThenStart(t *testing.T) {
	var calls atomic.Int32
	p := New(time.Millisecond, func(context.Context, int) bool {
		calls.Add(1)
		return false
	}, testLogger())

	p.Stop()
	p.Start(context.TODO())
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	if got := calls.Load(); got != 0 {
		t.Errorf("tick called %d times after Stop, want 0", got)
	}
}

// TestPoller_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not race or deadlock.
// Run with: go test -race ./internal/poller/...
func TestPoller_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := New(time.Millisecond, neverStop, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			p.Stop()
		}()
		wg.Wait()

		p.Stop()
		<-p.Done()
	}
}

// TestPoller_StopsWhenTickReturnsTrue verifies the N+1 contract: N
// continuing ticks followed by one stopping tick, then nothing more.
func TestPoller_StopsWhenTickReturnsTrue(t *testing.T) {
	const interval = 5 * time.Millisecond
	const n = 4

	var calls atomic.Int32
	p := New(interval, func(ctx context.Context, attempt int) bool {
		calls.Add(1)
		return attempt == n+1
	}, testLogger())
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}

	// nothing may fire within the next intervals
	time.Sleep(3 * interval)
	p.Stop()

	if got := calls.Load(); got != n+1 {
		t.Errorf("tick called %d times, want %d", got, n+1)
	}
	if got := p.Attempts(); got != n+1 {
		t.Errorf("Attempts() = %d, want %d", got, n+1)
	}
}

// TestPoller_NoOverlap verifies that a slow tick delays the next one instead
// of running concurrently with it.
func TestPoller_NoOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	p := New(time.Millisecond, func(ctx context.Context, attempt int) bool {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond) // slower than the interval
		return attempt >= 5
	}, testLogger())
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish")
	}
	p.Stop()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent ticks = %d, want 1", got)
	}
}

// TestPoller_IntervalMeasuredFromCompletion verifies that the gap between a
// tick finishing and the next one starting is at least the interval.
func TestPoller_IntervalMeasuredFromCompletion(t *testing.T) {
	const interval = 20 * time.Millisecond

	var mu sync.Mutex
	var finished time.Time
	var gaps []time.Duration

	p := New(interval, func(ctx context.Context, attempt int) bool {
		mu.Lock()
		if !finished.IsZero() {
			gaps = append(gaps, time.Since(finished))
		}
		mu.Unlock()

		time.Sleep(15 * time.Millisecond)

		mu.Lock()
		finished = time.Now()
		mu.Unlock()
		return attempt >= 3
	}, testLogger())
	p.Start(context.Background())
	<-p.Done()
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(gaps) != 2 {
		t.Fatalf("recorded %d gaps, want 2", len(gaps))
	}
	for i, gap := range gaps {
		if gap < interval {
			t.Errorf("gap[%d] = %v, want >= %v", i, gap, interval)
		}
	}
}

// TestPoller_ContextCancellation verifies that cancelling the parent context
// ends the loop.
func TestPoller_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(time.Millisecond, neverStop, testLogger())
	p.Start(ctx)

	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after context cancellation")
	}
	p.Stop()
}

// TestPoller_StopCancelsPendingTimer verifies that Stop prevents a scheduled
// tick from firing.
func TestPoller_StopCancelsPendingTimer(t *testing.T) {
	var calls atomic.Int32
	p := New(30*time.Millisecond, func(context.Context, int) bool {
		calls.Add(1)
		return false
	}, testLogger())
	p.Start(context.Background())
	p.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("tick called %d times after Stop, want 0", got)
	}
}

// TestPoller_TickPanicRecovery verifies that a panicking tick stops the loop
// and records an error with a correlation ID.
func TestPoller_TickPanicRecovery(t *testing.T) {
	p := New(time.Millisecond, func(context.Context, int) bool {
		panic("boom")
	}, testLogger())
	p.Start(context.Background())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after panic")
	}
	p.Stop()

	err := p.Err()
	if err == nil {
		t.Fatal("Err() = nil, want panic error")
	}
	if !strings.Contains(err.Error(), "correlation_id") {
		t.Errorf("Err() = %q, want correlation_id", err)
	}
}
