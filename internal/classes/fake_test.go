package classes

import (
	"context"
	"sync"
	"testing"
	"time"

	"classpane/internal/document"
	"classpane/internal/eventloop"
)

type attrWrite struct {
	node  document.NodeID
	value string
}

// fakeDoc is an in-memory Writer/Resolver. Writes can be held open with a
// gate to simulate slow round trips.
type fakeDoc struct {
	mu      sync.Mutex
	attrs   map[document.NodeID]string
	parents map[document.NodeID]document.NodeID
	writes  []attrWrite
	gate    chan struct{}
	fail    error
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{
		attrs:   make(map[document.NodeID]string),
		parents: make(map[document.NodeID]document.NodeID),
	}
}

func (d *fakeDoc) Attribute(node document.NodeID, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.attrs[node]
	return v, ok
}

func (d *fakeDoc) SetAttribute(ctx context.Context, node document.NodeID, name, value string) error {
	d.mu.Lock()
	d.writes = append(d.writes, attrWrite{node: node, value: value})
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.attrs[node] = value
	return nil
}

// EnclosingElementOrSelf treats any node with a recorded parent as a text
// node.
func (d *fakeDoc) EnclosingElementOrSelf(node document.NodeID) document.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.parents[node]; ok {
		return p
	}
	return node
}

func (d *fakeDoc) hold() {
	d.mu.Lock()
	d.gate = make(chan struct{})
	d.mu.Unlock()
}

func (d *fakeDoc) release() {
	d.mu.Lock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
	d.mu.Unlock()
}

func (d *fakeDoc) recorded() []attrWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]attrWrite, len(d.writes))
	copy(out, d.writes)
	return out
}

// waitWrites blocks until n writes have reached the document.
func (d *fakeDoc) waitWrites(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(d.recorded()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d writes, got %d", n, len(d.recorded()))
		}
		time.Sleep(time.Millisecond)
	}
}

// settle runs loop tasks until the engine has nothing pending or in flight.
func settle(t *testing.T, loop *eventloop.Loop, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		loop.Drain()
		if e.Settled() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine did not settle")
		}
		loop.RunNext(10 * time.Millisecond)
	}
}
