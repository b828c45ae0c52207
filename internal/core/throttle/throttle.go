// Package throttle implements a trailing-edge throttle for user actions.
//
// A Guard wraps one action. The first call in a quiet period runs at once
// and opens a window of length delay. Calls that arrive inside the window do
// not run immediately: only the most recent one is kept and runs when the
// window closes, and the call it displaced is rejected with ErrSuperseded.
// A call repeating the arguments of the run that opened the window shares
// that run's result instead of scheduling another execution, unless that run
// has already failed; a failed run is retried as a trailing call.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/core/future"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

var (
	// ErrSuperseded rejects a trailing call replaced by a newer call.
	ErrSuperseded = errors.New("throttled call superseded by a newer call")

	// ErrCanceled rejects a trailing call dropped by Flush.
	ErrCanceled = errors.New("throttled call canceled")

	// ErrStopped rejects calls made after Stop.
	ErrStopped = errors.New("throttle guard stopped")
)

// Func is the throttled action.
type Func[A comparable, R any] func(ctx context.Context, args A) (R, error)

// Option configures a Guard.
type Option func(*options)

type options struct {
	name   string
	logger observability.Logger
	now    func() time.Time
}

// WithName labels the guard in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for scheduling events.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used to measure windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type trailingCall[A comparable, R any] struct {
	ctx     context.Context
	args    A
	promise *future.Promise[R]
	timer   *time.Timer
}

// Guard throttles calls to a single action.
type Guard[A comparable, R any] struct {
	fn     Func[A, R]
	delay  time.Duration
	name   string
	logger observability.Logger
	now    func() time.Time

	mu         sync.Mutex
	hasRun     bool
	lastRunAt  time.Time
	windowArgs A
	windowRun  *future.Future[R]
	trailing   *trailingCall[A, R]
	stopped    bool
	runs       uint64
	superseded uint64
	coalesced  uint64
}

// New wraps fn so that completed runs start at least delay apart.
func New[A comparable, R any](fn Func[A, R], delay time.Duration, opts ...Option) *Guard[A, R] {
	o := options{
		name:   "action",
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if delay < 0 {
		delay = 0
	}
	return &Guard[A, R]{
		fn:     fn,
		delay:  delay,
		name:   o.name,
		logger: o.logger,
		now:    o.now,
	}
}

// Call requests a run with args and returns a handle for its result.
//
// The returned future rejects with ErrSuperseded if a newer call replaces
// this one before it runs. Execution is detached from ctx cancellation.
func (g *Guard[A, R]) Call(ctx context.Context, args A) *future.Future[R] {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return future.Rejected[R](ErrStopped)
	}

	now := g.now()
	if !g.hasRun || now.Sub(g.lastRunAt) >= g.delay {
		g.dropTrailing(ErrSuperseded)
		return g.runLocked(ctx, args, now)
	}

	if args == g.windowArgs && g.shareable(g.windowRun) {
		g.dropTrailing(ErrSuperseded)
		g.coalesced++
		return g.share(g.windowRun)
	}

	if g.trailing != nil && args == g.trailing.args {
		g.coalesced++
		return g.share(g.trailing.promise.Future())
	}

	g.dropTrailing(ErrSuperseded)

	wait := g.delay - now.Sub(g.lastRunAt)
	promise, result := future.New[R]()
	call := &trailingCall[A, R]{ctx: ctx, args: args, promise: promise}
	call.timer = time.AfterFunc(wait, func() { g.fire(call) })
	g.trailing = call

	g.logger.Debug("Throttled call scheduled",
		zap.String("action", g.name),
		zap.Duration("wait", wait),
	)
	return result
}

// Flush drops the pending trailing call, if any.
func (g *Guard[A, R]) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropTrailing(ErrCanceled)
}

// Stop drops the pending trailing call and rejects all later calls.
func (g *Guard[A, R]) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	g.dropTrailing(ErrStopped)
}

// Pending reports whether a trailing call is scheduled.
func (g *Guard[A, R]) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trailing != nil
}

// Stats counts runs, superseded calls, and calls that shared a result.
type Stats struct {
	Runs       uint64 `json:"runs"`
	Superseded uint64 `json:"superseded"`
	Coalesced  uint64 `json:"coalesced"`
}

// Stats returns the guard counters.
func (g *Guard[A, R]) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{Runs: g.runs, Superseded: g.superseded, Coalesced: g.coalesced}
}

func (g *Guard[A, R]) fire(call *trailingCall[A, R]) {
	g.mu.Lock()
	if g.trailing != call {
		g.mu.Unlock()
		return
	}
	g.trailing = nil
	run := g.runLocked(call.ctx, call.args, g.now())
	g.mu.Unlock()

	future.Forward(run, call.promise)
}

// runLocked starts fn and opens a new window. Callers must hold g.mu.
func (g *Guard[A, R]) runLocked(ctx context.Context, args A, now time.Time) *future.Future[R] {
	g.hasRun = true
	g.lastRunAt = now
	g.runs++

	promise, result := future.New[R]()
	g.windowArgs = args
	g.windowRun = result

	go func() {
		var (
			value R
			err   error
		)
		var catcher panics.Catcher
		catcher.Try(func() {
			value, err = g.fn(ctx, args)
		})
		if recovered := catcher.Recovered(); recovered != nil {
			err = fmt.Errorf("throttled %s panicked: %w", g.name, recovered.AsError())
			metrics.RecordPanic(metrics.PanicSourceThrottle, g.name)
		}
		promise.Settle(value, err)
	}()

	return g.share(result)
}

// shareable reports whether run may be handed to a repeated call: it is
// still running or it succeeded.
func (g *Guard[A, R]) shareable(run *future.Future[R]) bool {
	if run == nil {
		return false
	}
	_, settled, err := run.Peek()
	return !settled || err == nil
}

// share gives each caller its own handle on a shared result.
func (g *Guard[A, R]) share(src *future.Future[R]) *future.Future[R] {
	promise, result := future.New[R]()
	future.Forward(src, promise)
	return result
}

// dropTrailing rejects the pending trailing call with reason. Callers must
// hold g.mu.
func (g *Guard[A, R]) dropTrailing(reason error) {
	if g.trailing == nil {
		return
	}
	g.trailing.timer.Stop()
	g.trailing.promise.Reject(reason)
	g.trailing = nil

	if errors.Is(reason, ErrSuperseded) {
		g.superseded++
		metrics.RecordThrottleSuperseded(g.name)
		g.logger.Debug("Throttled call superseded", zap.String("action", g.name))
	}
}
