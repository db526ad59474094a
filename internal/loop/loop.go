// Package loop runs closures one at a time on a single goroutine.  Views use
// it as the one thread allowed to touch their store.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("loop closed")

// Loop is a single-goroutine executor.
type Loop struct {
	work chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// New starts a loop.  Stop must be called to release its goroutine.
func New() *Loop {
	l := &Loop{
		work: make(chan func(), 64),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.quit:
			return
		}
	}
}

// Post queues fn without waiting for it to run.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.quit:
		return ErrClosed
	default:
	}
	select {
	case l.work <- fn:
		return nil
	case <-l.quit:
		return ErrClosed
	}
}

// Do runs fn on the loop and waits for it to finish.  It must not be called
// from the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	return l.DoContext(context.Background(), fn)
}

// DoContext is like Do but gives up waiting to enqueue when ctx is done.
// Once enqueued, fn always runs to completion before DoContext returns.
func (l *Loop) DoContext(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	task := func() {
		defer close(ran)
		fn()
	}
	select {
	case l.work <- task:
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			// stopped before reaching the task
			return ErrClosed
		}
	}
}

// Stop ends the loop after the closure currently running, if any.  Queued
// work that has not started is discarded.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
