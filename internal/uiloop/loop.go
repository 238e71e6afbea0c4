// Package uiloop runs host work on a single goroutine.
//
// Script handlers execute synchronously on the host's event thread. Loop is
// that thread: event dispatch, script reloads and rendering are queued
// onto it so they never interleave.
//
//	loop := uiloop.New(64)
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	err := loop.Do(ctx, func(ctx context.Context) error {
//	    res := dispatcher.DispatchEvent(ctx, ev)
//	    return res.Err
//	})
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	goerrors "github.com/go-errors/errors"
)

// Errors returned by Loop.
var (
	ErrClosed    = errors.New("ui loop is closed")
	ErrQueueFull = errors.New("ui loop queue full")
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 100

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context) error

type job struct {
	fn     Task
	ctx    context.Context
	result chan error
}

// Loop serializes tasks through one goroutine.
type Loop struct {
	queue  chan *job
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// New creates a loop with the given queue size.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue: make(chan *job, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Close is called.
// Tasks still queued at that point fail with the reason.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx.Err())
			return
		case <-l.done:
			l.drain(ErrClosed)
			return
		case j := <-l.queue:
			j.result <- l.run(j)
			close(j.result)
		}
	}
}

// run executes one task with panic recovery.
func (l *Loop) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ui task panicked: %w", goerrors.Wrap(r, 2))
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}

func (l *Loop) drain(err error) {
	for {
		select {
		case j := <-l.queue:
			j.result <- err
			close(j.result)
		default:
			return
		}
	}
}

// Do runs fn on the loop and waits for it to finish or for ctx to end.
// A task abandoned by a cancelled caller still runs, with ctx cancelled.
func (l *Loop) Do(ctx context.Context, fn Task) error {
	if l.closed.Load() {
		return ErrClosed
	}

	j := &job{fn: fn, ctx: ctx, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	case l.queue <- j:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-j.result:
		return err
	case <-l.done:
		select {
		case err := <-j.result:
			return err
		default:
			return ErrClosed
		}
	}
}

// Post queues fn without waiting. Errors returned by fn are passed to
// onErr when it is not nil.
func (l *Loop) Post(fn Task, onErr func(error)) error {
	if l.closed.Load() {
		return ErrClosed
	}

	j := &job{fn: fn, ctx: context.Background(), result: make(chan error, 1)}

	select {
	case <-l.done:
		return ErrClosed
	case l.queue <- j:
		go func() {
			var err error
			select {
			case err = <-j.result:
			case <-l.done:
				err = ErrClosed
			}
			if err != nil && onErr != nil {
				onErr(err)
			}
		}()
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the loop. Queued tasks fail with ErrClosed.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// IsClosed reports whether Close has been called.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}
