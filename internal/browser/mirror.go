package browser

import (
	"github.com/go-rod/rod/lib/proto"

	"classpane/internal/document"
)

type mirrorNode struct {
	parent   document.NodeID
	nodeType int
	name     string
	attrs    map[string]string
	frame    document.FrameID // set on frame owner elements
	children []document.NodeID
}

// mirror is the local copy of the page's DOM, kept current from DOM domain
// events. It is not safe for concurrent use; Document guards it.
type mirror struct {
	root  document.NodeID
	nodes map[document.NodeID]*mirrorNode
}

func newMirror() *mirror {
	return &mirror{nodes: make(map[document.NodeID]*mirrorNode)}
}

// reset replaces the whole mirror with the tree rooted at root.
func (m *mirror) reset(root *proto.DOMNode) {
	m.nodes = make(map[document.NodeID]*mirrorNode)
	m.root = document.NoNode
	if root == nil {
		return
	}
	m.root = document.NodeID(root.NodeID)
	m.add(root, document.NoNode)
}

// add records n and everything below it, including iframe content
// documents and shadow roots.
func (m *mirror) add(n *proto.DOMNode, parent document.NodeID) {
	id := document.NodeID(n.NodeID)
	if old, ok := m.nodes[id]; ok {
		m.dropChildren(old)
	}
	mn := &mirrorNode{
		parent:   parent,
		nodeType: n.NodeType,
		name:     n.LocalName,
		attrs:    make(map[string]string, len(n.Attributes)/2),
		frame:    document.FrameID(n.FrameID),
	}
	if mn.name == "" {
		mn.name = n.NodeName
	}
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		mn.attrs[n.Attributes[i]] = n.Attributes[i+1]
	}
	m.nodes[id] = mn

	for _, c := range n.Children {
		mn.children = append(mn.children, document.NodeID(c.NodeID))
		m.add(c, id)
	}
	for _, s := range n.ShadowRoots {
		mn.children = append(mn.children, document.NodeID(s.NodeID))
		m.add(s, id)
	}
	if n.ContentDocument != nil {
		mn.children = append(mn.children, document.NodeID(n.ContentDocument.NodeID))
		m.add(n.ContentDocument, id)
	}
}

// setChildNodes replaces the children of parent.
func (m *mirror) setChildNodes(parent document.NodeID, nodes []*proto.DOMNode) {
	p, ok := m.nodes[parent]
	if !ok {
		return
	}
	m.dropChildren(p)
	for _, c := range nodes {
		p.children = append(p.children, document.NodeID(c.NodeID))
		m.add(c, parent)
	}
}

// insert adds n to parent right after prev, or first when prev is NoNode.
func (m *mirror) insert(parent, prev document.NodeID, n *proto.DOMNode) {
	p, ok := m.nodes[parent]
	if !ok || n == nil {
		return
	}
	id := document.NodeID(n.NodeID)
	at := 0
	if prev != document.NoNode {
		for i, c := range p.children {
			if c == prev {
				at = i + 1
				break
			}
		}
	}
	p.children = append(p.children, document.NoNode)
	copy(p.children[at+1:], p.children[at:])
	p.children[at] = id
	m.add(n, parent)
}

// remove drops node and its subtree.
func (m *mirror) remove(parent, node document.NodeID) {
	if p, ok := m.nodes[parent]; ok {
		for i, c := range p.children {
			if c == node {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	if n, ok := m.nodes[node]; ok {
		m.dropChildren(n)
		delete(m.nodes, node)
	}
}

func (m *mirror) dropChildren(n *mirrorNode) {
	for _, c := range n.children {
		if cn, ok := m.nodes[c]; ok {
			m.dropChildren(cn)
			delete(m.nodes, c)
		}
	}
	n.children = nil
}

func (m *mirror) setAttr(node document.NodeID, name, value string) bool {
	n, ok := m.nodes[node]
	if !ok {
		return false
	}
	n.attrs[name] = value
	return true
}

func (m *mirror) removeAttr(node document.NodeID, name string) bool {
	n, ok := m.nodes[node]
	if !ok {
		return false
	}
	delete(n.attrs, name)
	return true
}

func (m *mirror) attr(node document.NodeID, name string) (string, bool) {
	n, ok := m.nodes[node]
	if !ok || n.nodeType != document.ElementNode {
		return "", false
	}
	v, ok := n.attrs[name]
	return v, ok
}

func (m *mirror) enclosingElementOrSelf(node document.NodeID) document.NodeID {
	for node != document.NoNode {
		n, ok := m.nodes[node]
		if !ok {
			return document.NoNode
		}
		switch n.nodeType {
		case document.ElementNode:
			return node
		case document.DocumentNode:
			return document.NoNode
		}
		node = n.parent
	}
	return document.NoNode
}

func (m *mirror) ownerDocument(node document.NodeID) document.NodeID {
	for node != document.NoNode {
		n, ok := m.nodes[node]
		if !ok {
			return document.NoNode
		}
		if n.nodeType == document.DocumentNode {
			return node
		}
		node = n.parent
	}
	return document.NoNode
}

// frameScope is the frame of node's owner document: the frame id carried
// by the hosting iframe, or main for the top document.
func (m *mirror) frameScope(node document.NodeID, main document.FrameID) document.FrameID {
	doc := m.ownerDocument(node)
	if doc == document.NoNode {
		return ""
	}
	host, ok := m.nodes[m.nodes[doc].parent]
	if !ok {
		return main
	}
	return host.frame
}

// elements returns every element id, in no particular order.
func (m *mirror) elements() []document.NodeID {
	var out []document.NodeID
	for id, n := range m.nodes {
		if n.nodeType == document.ElementNode {
			out = append(out, id)
		}
	}
	return out
}
