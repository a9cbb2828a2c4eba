package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoop_DrainRunsNestedPostsInOrder(t *testing.T) {
	l := New()
	var order []int

	l.Post(func() {
		order = append(order, 1)
		l.Post(func() { order = append(order, 3) })
	})
	l.Post(func() { order = append(order, 2) })

	n := l.Drain()
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_RunNextTimesOut(t *testing.T) {
	l := New()
	start := time.Now()
	assert.False(t, l.RunNext(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go l.Post(func() {})
	assert.True(t, l.RunNext(time.Second))
}

func TestLoop_RunAndDo(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var ran int32
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Do(ctx, func() { atomic.AddInt32(&ran, 1) }))
	}
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLoop_PostNilIsIgnored(t *testing.T) {
	l := New()
	l.Post(nil)
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_PostFromTaskOnFullQueue(t *testing.T) {
	l := NewWithSize(1)
	var order []int

	l.Post(func() {
		order = append(order, 0)
		for i := 1; i <= 5; i++ {
			l.Post(func() { order = append(order, i) })
		}
	})
	l.Post(func() { order = append(order, -1) })
	assert.Equal(t, 2, l.Pending())

	done := make(chan int)
	go func() { done <- l.Drain() }()
	select {
	case n := <-done:
		assert.Equal(t, 7, n)
	case <-time.After(time.Second):
		t.Fatal("Drain blocked on a full queue")
	}
	assert.Equal(t, []int{0, -1, 1, 2, 3, 4, 5}, order)
	assert.Equal(t, 0, l.Pending())
}
