package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrExecutorClosed is returned for jobs submitted after Close.
var ErrExecutorClosed = errors.New("confirm: executor closed")

// SerialExecutor runs jobs one at a time, in submission order, on a single
// worker goroutine. Every dispatch goes through it so that a confirm-all
// batch and single confirmations never interleave their side effects.
type SerialExecutor struct {
	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type job struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// NewSerialExecutor starts the worker. Call Close to stop it.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		jobs: make(chan job),
		done: make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *SerialExecutor) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case j := <-e.jobs:
			j.result <- run(j)
		}
	}
}

func run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("confirm: job panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// Do runs fn on the worker and waits for it to finish. ctx only bounds the
// wait for a free worker: once started, a job is never abandoned.
func (e *SerialExecutor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case <-e.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case e.jobs <- j:
	}
	return <-j.result
}

// Close stops the worker after the running job, if any, completes. Jobs
// waiting for the worker fail with ErrExecutorClosed.
func (e *SerialExecutor) Close() {
	e.closeOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}
