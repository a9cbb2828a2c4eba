package document

import "sync"

// Listeners is a small registry of mutation callbacks that backends embed
// to implement OnMutation.
type Listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(NodeID)
}

// Add registers fn and returns a function that removes it again.
func (l *Listeners) Add(fn func(NodeID)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(NodeID))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// Notify calls every registered callback with node, in no particular order.
func (l *Listeners) Notify(node NodeID) {
	l.mu.RLock()
	fns := make([]func(NodeID), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(node)
	}
}
