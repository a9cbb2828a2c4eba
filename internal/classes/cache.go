package classes

import "classpane/internal/document"

// AttributeReader is the part of document.Document the cache reads from.
type AttributeReader interface {
	Attribute(node document.NodeID, name string) (string, bool)
}

// Cache is a side table from element to its ClassSet. Sets are built lazily
// from the element's class attribute and live until Invalidate drops them.
type Cache struct {
	doc  AttributeReader
	sets map[document.NodeID]ClassSet
}

// NewCache creates an empty cache reading attributes from doc.
func NewCache(doc AttributeReader) *Cache {
	return &Cache{
		doc:  doc,
		sets: make(map[document.NodeID]ClassSet),
	}
}

// Get returns the cached set for node, building it on first access. Later
// calls return the same set until node is invalidated.
func (c *Cache) Get(node document.NodeID) ClassSet {
	if set, ok := c.sets[node]; ok {
		return set
	}
	value, _ := c.doc.Attribute(node, "class")
	set := ParseAttribute(value)
	c.sets[node] = set
	return set
}

// Toggle sets the flag for name on node, adding the name if it is new.
func (c *Cache) Toggle(node document.NodeID, name string, enabled bool) {
	c.Get(node)[name] = enabled
}

// Invalidate drops the set for node. Local edits that were never flushed
// are lost; the next Get rebuilds from the attribute.
func (c *Cache) Invalidate(node document.NodeID) {
	delete(c.sets, node)
}

// Cached reports whether node currently has a set.
func (c *Cache) Cached(node document.NodeID) bool {
	_, ok := c.sets[node]
	return ok
}

// Len returns the number of cached sets.
func (c *Cache) Len() int {
	return len(c.sets)
}
