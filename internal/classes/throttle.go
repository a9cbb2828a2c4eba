package classes

import (
	"time"

	"classpane/internal/eventloop"
)

// Throttler coalesces bursts of Schedule calls into single runs of a task on
// the event loop.
//
// Scheduling while a run is already pending is a no-op. A task receives a
// done callback; if Schedule is called while a run has not called done yet,
// exactly one more run follows once it does. Every method must be called on
// the loop.
type Throttler struct {
	loop  eventloop.Poster
	delay time.Duration

	task      func(done func())
	timer     *time.Timer
	scheduled bool
	running   bool
	again     bool
	gen       uint64
}

// NewThrottler creates a throttler posting to loop. A zero delay runs the
// task on the next loop turn.
func NewThrottler(loop eventloop.Poster, delay time.Duration) *Throttler {
	return &Throttler{loop: loop, delay: delay}
}

// Schedule arranges for task to run. The most recently scheduled task is the
// one that runs.
func (t *Throttler) Schedule(task func(done func())) {
	t.task = task
	if t.running {
		t.again = true
		return
	}
	if t.scheduled {
		return
	}
	t.scheduled = true
	t.arm()
}

// Cancel drops a pending run. A run that already started is not affected.
func (t *Throttler) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.scheduled = false
	t.again = false
	t.gen++
}

// Busy reports whether a run is pending or has not finished.
func (t *Throttler) Busy() bool {
	return t.scheduled || t.running
}

func (t *Throttler) arm() {
	gen := t.gen
	fire := func() { t.fire(gen) }
	if t.delay <= 0 {
		t.loop.Post(fire)
		return
	}
	t.timer = time.AfterFunc(t.delay, func() { t.loop.Post(fire) })
}

func (t *Throttler) fire(gen uint64) {
	if gen != t.gen || !t.scheduled {
		return
	}
	t.scheduled = false
	t.timer = nil
	t.running = true

	finished := false
	t.task(func() {
		if finished {
			return
		}
		finished = true
		t.finish()
	})
}

func (t *Throttler) finish() {
	t.running = false
	if !t.again {
		return
	}
	t.again = false
	t.scheduled = true
	t.arm()
}
