// Package queue dispatches requests in FIFO batches with bounded concurrency.
//
// The queue has two states. While Idle, the next Enqueue starts a drain; while
// Draining, enqueues only append. A drain takes up to maxConcurrent requests
// from the front, runs them concurrently, waits for every one of them to
// settle, and repeats until nothing is pending. The check for an empty queue
// and the transition back to Idle happen under the same lock, so a request
// can never be stranded between drains.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/core"
	"github.com/textlens/textlens/internal/core/future"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

// DefaultMaxConcurrent is used when New receives a non-positive limit.
const DefaultMaxConcurrent = 2

// ErrQueueClosed rejects requests enqueued after Close.
var ErrQueueClosed = errors.New("request queue is closed")

// Executor performs a single request.
type Executor func(ctx context.Context, req core.Request) (json.RawMessage, error)

type drainState int

const (
	stateIdle drainState = iota
	stateDraining
)

func (s drainState) String() string {
	if s == stateDraining {
		return "draining"
	}
	return "idle"
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending      int    `json:"pending"`
	InFlight     int    `json:"in_flight"`
	PeakInFlight int    `json:"peak_in_flight"`
	Enqueued     uint64 `json:"enqueued"`
	Completed    uint64 `json:"completed"`
	Failed       uint64 `json:"failed"`
	Batches      uint64 `json:"batches"`
	State        string `json:"state"`
}

type item struct {
	ctx        context.Context
	req        core.Request
	promise    *future.Promise[json.RawMessage]
	enqueuedAt time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for batch and panic events.
func WithLogger(logger observability.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the time source used for wait-time logging.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is a FIFO request queue drained in batches of at most maxConcurrent.
type Queue struct {
	exec          Executor
	maxConcurrent int
	logger        observability.Logger
	now           func() time.Time

	mu       sync.Mutex
	state    drainState
	pending  []*item
	inFlight int
	closed   bool
	idle     chan struct{}
	stats    Stats
}

// New creates a queue that runs exec for every enqueued request.
func New(exec Executor, maxConcurrent int, opts ...Option) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}

	idle := make(chan struct{})
	close(idle)

	q := &Queue{
		exec:          exec,
		maxConcurrent: maxConcurrent,
		logger:        observability.NopLogger(),
		now:           time.Now,
		idle:          idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxConcurrent returns the batch size limit.
func (q *Queue) MaxConcurrent() int {
	return q.maxConcurrent
}

// Enqueue appends req and returns a future for its result. It never blocks
// and never fails at enqueue time; errors are delivered through the future.
//
// The request runs detached from ctx cancellation. Use Future.Await with a
// context to stop waiting.
func (q *Queue) Enqueue(ctx context.Context, req core.Request) *future.Future[json.RawMessage] {
	if ctx == nil {
		ctx = context.Background()
	}

	promise, result := future.New[json.RawMessage]()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		promise.Reject(ErrQueueClosed)
		return result
	}

	q.pending = append(q.pending, &item{
		ctx:        context.WithoutCancel(ctx),
		req:        req,
		promise:    promise,
		enqueuedAt: q.now(),
	})
	q.stats.Enqueued++
	depth := len(q.pending)

	start := q.state == stateIdle
	if start {
		q.state = stateDraining
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	q.logger.Debug("Request enqueued",
		zap.String("request_id", req.ID),
		zap.String("endpoint", req.Endpoint.String()),
		zap.Int("pending", depth),
	)

	if start {
		go q.drain()
	}
	return result
}

// Len returns the number of requests waiting for a batch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of requests currently executing.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.Pending = len(q.pending)
	stats.InFlight = q.inFlight
	stats.State = q.state.String()
	return stats
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting requests and waits for the active drain to finish.
// Requests already pending still run.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Wait(ctx)
}

func (q *Queue) drain() {
	finished := false
	defer func() {
		if finished {
			return
		}
		// A drain that exits abnormally must still release the state so
		// later enqueues are not stuck behind it.
		q.mu.Lock()
		q.inFlight = 0
		restart := len(q.pending) > 0
		if !restart {
			q.state = stateIdle
			close(q.idle)
		}
		q.mu.Unlock()
		if restart {
			go q.drain()
		}
	}()

	for {
		batch, ok := q.nextBatch()
		if !ok {
			finished = true
			return
		}
		q.runBatch(batch)
	}
}

// nextBatch takes the next batch, or moves the queue to Idle when nothing is
// pending.
func (q *Queue) nextBatch() ([]*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.state = stateIdle
		close(q.idle)
		return nil, false
	}

	n := min(q.maxConcurrent, len(q.pending))
	batch := make([]*item, n)
	copy(batch, q.pending[:n])
	clear(q.pending[:n])
	q.pending = q.pending[n:]

	q.inFlight = n
	if n > q.stats.PeakInFlight {
		q.stats.PeakInFlight = n
	}
	q.stats.Batches++
	return batch, true
}

func (q *Queue) runBatch(batch []*item) {
	metrics.SetInFlight(len(batch))
	metrics.SetQueueDepth(q.Len())
	q.logger.Debug("Dispatching batch", zap.Int("size", len(batch)))

	var wg conc.WaitGroup
	for _, it := range batch {
		wg.Go(func() { q.run(it) })
	}
	wg.Wait()

	metrics.SetInFlight(0)
}

func (q *Queue) run(it *item) {
	var (
		value json.RawMessage
		err   error
	)

	started := q.now()
	var catcher panics.Catcher
	catcher.Try(func() {
		value, err = q.exec(it.ctx, it.req)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = fmt.Errorf("%s request %s panicked: %w", it.req.Endpoint, it.req.ID, recovered.AsError())
		metrics.RecordPanic(metrics.PanicSourceQueue, it.req.Endpoint.String())
		q.logger.Error("Executor panicked",
			zap.String("request_id", it.req.ID),
			zap.String("endpoint", it.req.Endpoint.String()),
			zap.Any("panic", recovered.Value),
		)
	}

	q.mu.Lock()
	q.inFlight--
	if err != nil {
		q.stats.Failed++
	} else {
		q.stats.Completed++
	}
	q.mu.Unlock()

	q.logger.Debug("Request settled",
		zap.String("request_id", it.req.ID),
		zap.Duration("wait", started.Sub(it.enqueuedAt)),
		zap.Duration("duration", q.now().Sub(started)),
		zap.Bool("ok", err == nil),
	)

	it.promise.Settle(value, err)
}
