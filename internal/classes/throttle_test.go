package classes

import (
	"testing"
	"time"

	"classpane/internal/eventloop"
)

func TestThrottler_CoalescesWithinOneTurn(t *testing.T) {
	loop := eventloop.New()
	th := NewThrottler(loop, 0)

	calls := 0
	last := 0
	for i := 1; i <= 10; i++ {
		value := i
		th.Schedule(func(done func()) {
			calls++
			last = value
			done()
		})
	}
	loop.Drain()

	if calls != 1 {
		t.Errorf("Expected 1 call for rapid succession, got %d", calls)
	}
	if last != 10 {
		t.Errorf("Expected last scheduled task to run, got %d", last)
	}
	if th.Busy() {
		t.Errorf("Expected throttler to be idle")
	}
}

func TestThrottler_DelayWaitsForTimer(t *testing.T) {
	loop := eventloop.New()
	th := NewThrottler(loop, 20*time.Millisecond)

	calls := 0
	th.Schedule(func(done func()) { calls++; done() })
	loop.Drain()
	if calls != 0 {
		t.Fatalf("Expected no call before the delay elapsed, got %d", calls)
	}
	if !loop.RunNext(time.Second) {
		t.Fatalf("Expected the timer to post the task")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestThrottler_SchedulingWhileRunningDefersOneRun(t *testing.T) {
	loop := eventloop.New()
	th := NewThrottler(loop, 0)

	var finish func()
	calls := 0
	task := func(done func()) {
		calls++
		finish = done
	}

	th.Schedule(task)
	loop.Drain()
	if calls != 1 {
		t.Fatalf("Expected first run, got %d calls", calls)
	}

	th.Schedule(task)
	th.Schedule(task)
	loop.Drain()
	if calls != 1 {
		t.Fatalf("Expected no run while the first is unfinished, got %d calls", calls)
	}

	finish()
	finish()
	loop.Drain()
	if calls != 2 {
		t.Fatalf("Expected exactly one deferred run, got %d calls", calls)
	}
	finish()
	if th.Busy() {
		t.Errorf("Expected throttler to be idle")
	}
}

func TestThrottler_Cancel(t *testing.T) {
	loop := eventloop.New()
	th := NewThrottler(loop, 0)

	calls := 0
	th.Schedule(func(done func()) { calls++; done() })
	th.Cancel()
	loop.Drain()

	if calls != 0 {
		t.Errorf("Expected 0 calls after cancel, got %d", calls)
	}

	th.Schedule(func(done func()) { calls++; done() })
	loop.Drain()
	if calls != 1 {
		t.Errorf("Expected scheduling to work after cancel, got %d calls", calls)
	}
}
