package eventservice

import (
	"context"
	"errors"
	"log/slog"
)

// ErrLoopStopped is returned when work is submitted after the loop exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs submitted closures one at a time on a single goroutine. Every
// registry, subscription and tailer access goes through it.
type Loop struct {
	ops     chan func()
	stopped chan struct{}
	logger  *slog.Logger
}

// NewLoop creates a loop with a queue of the given depth.
func NewLoop(depth int, logger *slog.Logger) *Loop {
	if depth <= 0 {
		depth = 1024
	}
	return &Loop{
		ops:     make(chan func(), depth),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run executes closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.ops:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in event loop", slog.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn without blocking. It returns false when the queue is full
// or the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.ops <- fn:
		return true
	default:
		return false
	}
}

// Enqueue queues fn, waiting for room when the queue is full. It returns
// false once the loop has stopped.
func (l *Loop) Enqueue(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.ops <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case l.ops <- wrapped:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.stopped }
