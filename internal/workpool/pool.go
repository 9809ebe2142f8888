// Package workpool bounds how many TEE bridge calls run concurrently,
// independent of how many HTTP requests net/http happens to be servicing at
// once. The challenge engines and the Token Issuer route their capability
// invocations through a Pool; key_exchange (httpapi) and close_session
// (coordinator, session reaper) are called on the Bridge directly.
package workpool

import (
	"context"
	"errors"
	"time"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("workpool: pool closed")

// ErrTimeout is returned when a submitted call does not return within its
// per-call timeout. The underlying call is not aborted — cancellation does
// not interrupt an in-flight TEE call (see the concurrency design note this
// implements) — but the caller stops waiting, and the engines and the Token
// Issuer map it, like any other Submit error, to an SgxError response.
var ErrTimeout = errors.New("workpool: call timed out")

// Pool runs work items with bounded concurrency, mirroring the
// semaphore-channel idiom used elsewhere in this codebase for bounding
// concurrent outbound calls.
type Pool struct {
	sem     chan struct{}
	timeout time.Duration
	closed  chan struct{}
}

// New creates a Pool with the given maximum concurrency and per-call
// timeout. workers <= 0 defaults to 8; timeout <= 0 disables the deadline.
func New(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 8
	}
	return &Pool{
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		closed:  make(chan struct{}),
	}
}

// Submit runs fn on a pool slot and returns its result. It blocks until a
// slot is free, fn completes, the pool is closed, or the per-call timeout
// elapses — whichever comes first. fn keeps running to completion in its
// own goroutine even past a timeout; Submit simply stops waiting for it.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-callCtx.Done():
		return nil, translateDone(callCtx)
	}

	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-p.sem }()
		val, err := fn(callCtx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-callCtx.Done():
		return nil, translateDone(callCtx)
	}
}

func translateDone(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// InFlight reports the number of calls currently holding a pool slot.
func (p *Pool) InFlight() int {
	return len(p.sem)
}

// Capacity reports the pool's configured maximum concurrency.
func (p *Pool) Capacity() int {
	return cap(p.sem)
}

// Close marks the pool as closed; subsequent Submit calls fail fast with
// ErrPoolClosed. It does not wait for in-flight work to finish.
func (p *Pool) Close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
}
