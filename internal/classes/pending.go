package classes

import "classpane/internal/document"

// Pending buffers the next class attribute value per element. A later Put
// for the same element replaces the earlier value.
type Pending struct {
	values map[document.NodeID]string
}

// NewPending creates an empty buffer.
func NewPending() *Pending {
	return &Pending{values: make(map[document.NodeID]string)}
}

// Put stores value as the next write for node.
func (p *Pending) Put(node document.NodeID, value string) {
	p.values[node] = value
}

// Get returns the buffered value for node.
func (p *Pending) Get(node document.NodeID) (string, bool) {
	v, ok := p.values[node]
	return v, ok
}

// Swap hands the buffered values to the caller and starts a fresh buffer,
// so edits made while the returned batch is being written go to the next
// batch.
func (p *Pending) Swap() map[document.NodeID]string {
	batch := p.values
	p.values = make(map[document.NodeID]string)
	return batch
}

// Len returns the number of buffered elements.
func (p *Pending) Len() int {
	return len(p.values)
}
