package classes

import "classpane/internal/document"

// Suppressor tracks elements with self-issued writes in flight. Mutation
// notifications for those elements are echoes of our own writes.
//
// Arm and Release are counted so that an element stays suppressed while any
// of its writes is outstanding.
type Suppressor struct {
	inflight map[document.NodeID]int
}

// NewSuppressor creates an empty suppressor.
func NewSuppressor() *Suppressor {
	return &Suppressor{inflight: make(map[document.NodeID]int)}
}

// Arm marks one more write in flight for node.
func (s *Suppressor) Arm(node document.NodeID) {
	s.inflight[node]++
}

// Release marks one write for node as settled.
func (s *Suppressor) Release(node document.NodeID) {
	n, ok := s.inflight[node]
	if !ok {
		return
	}
	if n <= 1 {
		delete(s.inflight, node)
		return
	}
	s.inflight[node] = n - 1
}

// Suppressed reports whether node has a write in flight.
func (s *Suppressor) Suppressed(node document.NodeID) bool {
	return s.inflight[node] > 0
}

// Len returns the number of suppressed elements.
func (s *Suppressor) Len() int {
	return len(s.inflight)
}
