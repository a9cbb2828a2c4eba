// Package document defines the collaborator contracts that the class pane
// edits through: an attribute-level view of a document tree, the stylesheet
// metadata of its frames and a document-wide class index.
//
// Two backends implement these contracts: internal/browser talks to a live
// Chrome page over the DevTools protocol and internal/htmldoc edits a local
// HTML file.
package document

import (
	"context"
	"errors"
)

// NodeID is an opaque handle to a node owned by a backend. Handles are
// compared by identity; the zero value is NoNode.
type NodeID int64

// NoNode means "no node", e.g. an empty selection.
const NoNode NodeID = 0

// FrameID identifies the frame scope a node belongs to.
type FrameID string

// StyleSheetID identifies one stylesheet known to a backend.
type StyleSheetID string

var (
	// ErrNoNode is returned when an operation needs a node that is absent.
	ErrNoNode = errors.New("document: no such node")
	// ErrNotFound is returned when a selector matches nothing.
	ErrNotFound = errors.New("document: no element matches selector")
	// ErrClosed is returned after the backend has been closed.
	ErrClosed = errors.New("document: backend closed")
)

// Node types, matching the DOM nodeType values.
const (
	ElementNode  = 1
	TextNode     = 3
	CommentNode  = 8
	DocumentNode = 9
)

// Document is the attribute-level view of a document tree.
type Document interface {
	// Attribute reads an attribute from the backend's local mirror.
	Attribute(node NodeID, name string) (string, bool)

	// SetAttribute writes an attribute and blocks until the write has
	// settled. Callers that must not block run it on a goroutine.
	SetAttribute(ctx context.Context, node NodeID, name, value string) error

	// EnclosingElementOrSelf returns node if it is an element, otherwise its
	// nearest element ancestor, or NoNode.
	EnclosingElementOrSelf(node NodeID) NodeID

	// FrameScope returns the frame the node lives in.
	FrameScope(node NodeID) FrameID

	// OwnerDocument returns the document node that owns node.
	OwnerDocument(node NodeID) NodeID

	// OnMutation registers fn for attribute changes on any node, including
	// the ones caused by SetAttribute. fn may run on any goroutine.
	OnMutation(fn func(NodeID)) (cancel func())
}

// StyleSheets exposes class-name metadata per stylesheet.
type StyleSheets interface {
	StyleSheetsInFrame(frame FrameID) []StyleSheetID
	StyleSheetClassNames(ctx context.Context, id StyleSheetID) ([]string, error)
}

// ClassIndex exposes the class names used by live elements of a document.
type ClassIndex interface {
	DocumentClassNames(ctx context.Context, doc NodeID) ([]string, error)
}

// Selector resolves CSS selectors against the top document.
type Selector interface {
	QuerySelector(ctx context.Context, selector string) (NodeID, error)
}

// Backend bundles everything the class pane needs from a document source.
type Backend interface {
	Document
	StyleSheets
	ClassIndex
	Selector

	// Describe returns a short label such as "div#main.card" for display.
	Describe(node NodeID) string

	Close() error
}
