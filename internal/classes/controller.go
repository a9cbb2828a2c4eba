package classes

import (
	"strings"

	"classpane/internal/document"
)

// Resolver maps a selected node to the element whose classes are edited.
type Resolver interface {
	EnclosingElementOrSelf(node document.NodeID) document.NodeID
}

// State is the controller's interaction state.
type State int

const (
	// StateNoSelection means there is no element to edit.
	StateNoSelection State = iota
	// StateViewing means an element is selected and the input is empty.
	StateViewing
	// StateEditing means the input holds text that has not been committed.
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateNoSelection:
		return "no-selection"
	case StateViewing:
		return "viewing"
	case StateEditing:
		return "editing"
	}
	return "unknown"
}

// Item is one checkbox in the rendered list.
type Item struct {
	Name    string
	Enabled bool
}

// View is what the panel shows.
type View struct {
	Target       document.NodeID
	InputEnabled bool
	Items        []Item
}

// Controller drives the panel: it owns the input text, the selection and
// the visibility lifecycle, and decides when to rebuild the view or install
// uncommitted edits. All methods must be called on the engine's loop.
type Controller struct {
	engine *Engine
	doc    Resolver

	selected document.NodeID
	previous document.NodeID

	text       string
	suggestion string

	visible  bool
	view     View
	onRender func(View)
}

// NewController creates a hidden controller with no selection.
func NewController(engine *Engine, doc Resolver) *Controller {
	return &Controller{engine: engine, doc: doc}
}

// OnRender registers fn to be called with every rebuilt view.
func (c *Controller) OnRender(fn func(View)) {
	c.onRender = fn
}

// State reports the interaction state.
func (c *Controller) State() State {
	if c.target() == document.NoNode {
		return StateNoSelection
	}
	if c.text != "" {
		return StateEditing
	}
	return StateViewing
}

// Selected returns the raw selected node.
func (c *Controller) Selected() document.NodeID {
	return c.selected
}

// Text returns the input text without the suggestion.
func (c *Controller) Text() string {
	return c.text
}

// View returns the most recently built view.
func (c *Controller) View() View {
	return c.view
}

// Visible reports whether the panel is shown.
func (c *Controller) Visible() bool {
	return c.visible
}

// Show makes the panel visible and rebuilds the view.
func (c *Controller) Show() {
	c.visible = true
	c.Update()
}

// Hide hides the panel. Nothing is rebuilt while hidden.
func (c *Controller) Hide() {
	c.visible = false
}

// Toggle flips visibility, like the toolbar's ".cls" button.
func (c *Controller) Toggle() {
	if c.visible {
		c.Hide()
		return
	}
	c.Show()
}

// OnSelectionChanged switches to node. Text still in the input is committed
// to the previous element first, so navigating away never discards it.
func (c *Controller) OnSelectionChanged(node document.NodeID) {
	if c.previous != document.NoNode && c.text != "" {
		for _, name := range SplitInput(c.text) {
			c.engine.Toggle(c.previous, name, true)
		}
		c.clearInput()
		c.engine.Install(c.previous, "")
	}
	c.selected = node
	c.previous = c.target()
	c.Update()
}

// SetInput records the input text and the autocomplete suggestion currently
// shown for it, and previews the result on the live element.
func (c *Controller) SetInput(text, suggestion string) {
	c.text = text
	c.suggestion = suggestion
	node := c.target()
	if node == document.NoNode {
		return
	}
	c.engine.Install(node, c.draft())
}

// Click handles a checkbox change for name.
func (c *Controller) Click(name string, enabled bool) {
	node := c.target()
	if node == document.NoNode {
		return
	}
	c.engine.Toggle(node, name, enabled)
	c.engine.Install(node, c.draft())
	c.Update()
}

// Submit handles enter. An autocomplete suggestion that extends the text is
// accepted first and Submit returns true without committing; the caller
// should put Text() back into the input. Otherwise every name in the text
// is enabled, the input is cleared and the view rebuilt.
func (c *Controller) Submit() (acceptedSuggestion bool) {
	if c.suggestion != "" && c.suggestion != c.text {
		c.text = c.suggestion
		c.suggestion = ""
		return true
	}
	c.commit(c.text)
	return false
}

// Cancel handles escape: the input is cleared without committing. It
// reports whether the key was consumed, which is the case unless the input
// held only whitespace.
func (c *Controller) Cancel() (consumed bool) {
	consumed = strings.TrimSpace(c.text) != ""
	c.commit("")
	return consumed
}

// OnExternalMutation forwards a mutation notification to the engine and
// rebuilds the view if the element's model was dropped.
func (c *Controller) OnExternalMutation(node document.NodeID) {
	if c.engine.OnExternalMutation(node) {
		c.Update()
	}
}

// Update rebuilds the view from the selected element's model. It does
// nothing while the panel is hidden.
func (c *Controller) Update() {
	if !c.visible {
		return
	}
	node := c.target()
	view := View{Target: node, InputEnabled: node != document.NoNode}
	if node != document.NoNode {
		set := c.engine.ClassSet(node)
		for _, name := range set.Names() {
			view.Items = append(view.Items, Item{Name: name, Enabled: set[name]})
		}
	}
	c.view = view
	if c.onRender != nil {
		c.onRender(view)
	}
}

func (c *Controller) commit(text string) {
	c.clearInput()
	node := c.target()
	if node == document.NoNode {
		return
	}
	for _, name := range SplitInput(text) {
		c.engine.Toggle(node, name, true)
	}
	c.engine.Install(node, "")
	c.Update()
}

func (c *Controller) clearInput() {
	c.text = ""
	c.suggestion = ""
}

// draft is the input text with the current suggestion applied.
func (c *Controller) draft() string {
	if c.suggestion != "" {
		return c.suggestion
	}
	return c.text
}

func (c *Controller) target() document.NodeID {
	if c.selected == document.NoNode {
		return document.NoNode
	}
	return c.doc.EnclosingElementOrSelf(c.selected)
}
