package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("vm worker stopped")

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func() (any, error)
	done chan workResult
}

// workResult holds the return value from a unit of work.
type workResult struct {
	value any
	err   error
}

// VMWorker serializes all VM access through a single goroutine.
// Sessions keep a live VM between requests and the interpreter is
// single-threaded, so every RPC handler goes through the worker.
type VMWorker struct {
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker() *VMWorker {
	w := &VMWorker{
		requests: make(chan workRequest),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *VMWorker) execute(fn func() (any, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in vm worker: %v", r)
			result = workResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn()
	return workResult{value: v, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. It gives up without running fn if ctx ends or the worker
// stops before fn is picked up. Once started, fn runs to completion; it
// should watch ctx itself.
func (w *VMWorker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
