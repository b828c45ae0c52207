// Package future provides a single-resolution result handle.
//
// A Promise is the writable side and is held only by whoever produces the
// value. Callers receive the read-only Future. A future settles exactly once;
// later Resolve or Reject calls are ignored.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrNilRejection is recorded when a promise is rejected with a nil error.
var ErrNilRejection = errors.New("future rejected with nil error")

// Future is the read side of a pending result.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// Promise is the write side of a pending result.
type Promise[T any] struct {
	f *Future[T]
}

// New returns a connected promise and future.
func New[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return &Promise[T]{f: f}, f
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	p, f := New[T]()
	p.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	p, f := New[T]()
	p.Reject(err)
	return f
}

// Future returns the read side of p.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Resolve settles the future with v. It reports false if the future was
// already settled.
func (p *Promise[T]) Resolve(v T) bool {
	return p.f.settle(v, nil)
}

// Reject settles the future with err. It reports false if the future was
// already settled.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return p.f.settle(zero, err)
}

// Settle resolves or rejects depending on err.
func (p *Promise[T]) Settle(v T, err error) bool {
	if err != nil {
		return p.Reject(err)
	}
	return p.Resolve(v)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a result.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done. Abandoning the wait
// does not cancel the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled outcome without blocking. ok is false while the
// future is still pending.
func (f *Future[T]) Peek() (value T, ok bool, err error) {
	if !f.Settled() {
		var zero T
		return zero, false, nil
	}
	return f.value, true, f.err
}

// Then derives a future from f by applying fn once f resolves. A rejection of
// f propagates unchanged.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	p, out := New[U]()
	go func() {
		<-f.done
		if f.err != nil {
			p.Reject(f.err)
			return
		}
		p.Settle(fn(f.value))
	}()
	return out
}

// Forward settles dst with the outcome of src once src settles.
func Forward[T any](src *Future[T], dst *Promise[T]) {
	go func() {
		<-src.done
		dst.Settle(src.value, src.err)
	}()
}
