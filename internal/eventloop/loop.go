// Package eventloop runs tasks one at a time on a single goroutine.
//
// The class pane keeps all of its model state on one logical thread. Work
// that must wait (attribute writes, metadata fetches, timers) happens on
// other goroutines and hands its continuation back with Post.
package eventloop

import (
	"context"
	"sync"
	"time"
)

// Poster accepts tasks for later execution on the owning loop.
type Poster interface {
	Post(fn func())
}

// DefaultQueueSize is the task buffer used by New.
const DefaultQueueSize = 1024

// Loop is a FIFO task queue drained by one goroutine.
//
// A Loop is either driven by Run, or by hand with Drain and RunNext in
// tests. Mixing both at the same time is a programming error.
type Loop struct {
	tasks chan func()

	// overflow holds posts made while tasks was full. While it is non-empty
	// every post goes here so FIFO order holds.
	mu       sync.Mutex
	overflow []func()
}

// New creates a loop with the default queue size.
func New() *Loop {
	return NewWithSize(DefaultQueueSize)
}

// NewWithSize creates a loop whose channel holds size tasks. Posts beyond
// that spill into an unbounded overflow list.
func NewWithSize(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{tasks: make(chan func(), size)}
}

// Post enqueues fn. It never blocks, so it is safe to call from any
// goroutine, including from a task running on the loop.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.overflow) == 0 {
		select {
		case l.tasks <- fn:
			return
		default:
		}
	}
	l.overflow = append(l.overflow, fn)
}

// run refills the channel from the overflow list and then runs fn.
func (l *Loop) run(fn func()) {
	l.mu.Lock()
	for len(l.overflow) > 0 {
		select {
		case l.tasks <- l.overflow[0]:
			l.overflow[0] = nil
			l.overflow = l.overflow[1:]
			continue
		default:
		}
		break
	}
	l.mu.Unlock()
	fn()
}

// Run executes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

// Do posts fn and waits for it to finish. It must not be called from a task
// on the same loop, which would deadlock.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs queued tasks, including ones they post, until the queue is
// empty. It returns the number of tasks run.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			l.run(fn)
			n++
		default:
			return n
		}
	}
}

// RunNext waits up to timeout for one task and runs it. It reports whether a
// task ran.
func (l *Loop) RunNext(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case fn := <-l.tasks:
		l.run(fn)
		return true
	case <-timer.C:
		return false
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) + len(l.overflow)
}
