package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/runner"
)

var (
	// ErrWorkerStopped is returned for work submitted after Stop.
	ErrWorkerStopped = errors.New("vm worker stopped")
	// ErrSessionPanic wraps a panic raised while driving the VM. The VM is
	// halted when it is returned.
	ErrSessionPanic = errors.New("vm session panicked")
)

// job is one closure queued for the session goroutine. done has room for
// the result so the goroutine never blocks on a caller that gave up.
type job struct {
	ctx  context.Context
	fn   func(*runner.Runner) error
	done chan error
}

// VMWorker owns a runner and applies every debug command to it from one
// goroutine, in submission order.
type VMWorker struct {
	runner   *runner.Runner
	jobs     chan job
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewVMWorker starts the session goroutine for r.
func NewVMWorker(r *runner.Runner) *VMWorker {
	w := &VMWorker{
		runner:  r,
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *VMWorker) loop() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- w.run(j.fn)
		case <-w.quit:
			return
		}
	}
}

// run calls fn. A panic leaves the VM in an unknown state, so it is halted;
// breakpoints and loaded code survive for the next Start.
func (w *VMWorker) run(fn func(*runner.Runner) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("vm session panic: %v", p)
			w.runner.VM().Halt()
			err = fmt.Errorf("%w: %v", ErrSessionPanic, p)
		}
	}()
	return fn(w.runner)
}

// Submit queues fn and waits for it to finish. It returns ErrWorkerStopped
// once Stop has been called, and ctx's error if ctx ends before fn is
// picked up. A job that has started always runs to completion.
func (w *VMWorker) Submit(ctx context.Context, fn func(*runner.Runner) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-w.stopped:
		// The loop only exits between jobs, so a taken job has answered.
		select {
		case err := <-j.done:
			return err
		default:
			return ErrWorkerStopped
		}
	}
}

// Do runs fn on w's goroutine and returns its typed result.
func Do[T any](ctx context.Context, w *VMWorker, fn func(*runner.Runner) (T, error)) (T, error) {
	var res T
	err := w.Submit(ctx, func(r *runner.Runner) error {
		var err error
		res, err = fn(r)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res, nil
}

// Stop ends the session goroutine after the job in progress, if any. It is
// safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}
