package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tick performs one poll. attempt starts at 1. Returning true stops the
// poller; returning false arms the timer for the next attempt.
type Tick func(ctx context.Context, attempt int) (stop bool)

// Poller runs a chained polling loop: each attempt is scheduled only after
// the previous one has returned, so requests never overlap and the interval
// is measured from completion to the next dispatch.
//
// The first attempt fires one interval after [Poller.Start].
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Poller struct {
	interval time.Duration
	tick     Tick
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	attempts int
	err      error

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a [Poller] that calls tick every interval until tick asks to
// stop, the context is cancelled, or [Poller.Stop] is called.
func New(interval time.Duration, tick Tick, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		interval: interval,
		tick:     tick,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Done returns a channel that is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Attempts returns the number of ticks that have been dispatched.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Err returns the error that ended the loop abnormally (a recovered panic in
// the tick), or nil.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Start begins the polling loop in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	pollCtx := p.ctx // capture under lock to avoid race
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.doneOnce.Do(func() { close(p.done) })

		timer := time.NewTimer(p.interval)
		defer timer.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-timer.C:
			}

			p.mu.Lock()
			p.attempts++
			attempt := p.attempts
			p.mu.Unlock()

			if p.safeTick(pollCtx, attempt) {
				return
			}
			if pollCtx.Err() != nil {
				return
			}
			timer.Reset(p.interval)
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to return.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op that also closes the Done channel.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		if p.cancel != nil {
			p.cancel()
		}
	}
	p.mu.Unlock()

	p.wg.Wait()

	// ensure Done is closed even if Start() was never called
	p.doneOnce.Do(func() { close(p.done) })
}

// safeTick calls the tick with panic recovery.
// A panic stops the loop; the full stack trace is logged with a correlation
// ID and a user-facing error carrying the same ID is kept for [Poller.Err].
func (p *Poller) safeTick(ctx context.Context, attempt int) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			p.logger.Error("poll tick panic",
				"correlation_id", correlationID,
				"attempt", attempt,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(stack),
			)

			p.mu.Lock()
			p.err = fmt.Errorf("poll tick panic (correlation_id: %s)", correlationID)
			p.mu.Unlock()
			stop = true
		}
	}()
	return p.tick(ctx, attempt)
}
