package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"classpane/internal/document"
	"classpane/internal/logging"
)

// DefaultEchoTimeout bounds how long SetAttribute waits for Chrome to
// report the change back.
const DefaultEchoTimeout = 2 * time.Second

// Options configures a Document.
type Options struct {
	EchoTimeout time.Duration
	Logger      *zap.Logger

	// OnDocumentUpdated runs after the page replaced its document (for
	// example after a navigation) and the mirror was refetched. Node ids
	// handed out before are no longer valid.
	OnDocumentUpdated func()
}

type echoKey struct {
	node document.NodeID
	name string
}

// Document is a document.Backend over a live Chrome page. Attribute reads
// are served from a local mirror kept current by DOM events.
type Document struct {
	page   *rod.Page
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	log    *zap.Logger
	done   chan struct{}

	mu        sync.RWMutex
	dom       *mirror
	mainFrame document.FrameID
	sheets    map[document.StyleSheetID]document.FrameID
	waiters   map[echoKey][]chan struct{}
	closed    bool

	listeners document.Listeners
}

var _ document.Backend = (*Document)(nil)

// Open mirrors page's DOM and starts following its DOM and CSS events. The
// returned Document stays live until Close, independent of ctx.
func Open(ctx context.Context, page *rod.Page, opts Options) (*Document, error) {
	if opts.EchoTimeout <= 0 {
		opts.EchoTimeout = DefaultEchoTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Get(logging.CategoryBrowser)
	}
	evCtx, cancel := context.WithCancel(context.Background())
	d := &Document{
		page:    page.Context(evCtx),
		ctx:     evCtx,
		cancel:  cancel,
		opts:    opts,
		log:     log,
		done:    make(chan struct{}),
		dom:     newMirror(),
		sheets:  make(map[document.StyleSheetID]document.FrameID),
		waiters: make(map[echoKey][]chan struct{}),
	}

	// Subscribe before enabling so that the styleSheetAdded burst sent on
	// CSS.enable is not lost. Events queue until wait runs.
	wait := d.page.EachEvent(
		d.onAttributeModified,
		d.onAttributeRemoved,
		d.onSetChildNodes,
		d.onChildNodeInserted,
		d.onChildNodeRemoved,
		d.onDocumentUpdated,
		d.onStyleSheetAdded,
		d.onStyleSheetRemoved,
	)

	fail := func(err error) (*Document, error) {
		cancel()
		return nil, err
	}
	for _, enable := range []interface {
		Call(proto.Client) error
	}{proto.PageEnable{}, proto.DOMEnable{}, proto.CSSEnable{}} {
		if err := enable.Call(d.page.Context(ctx)); err != nil {
			return fail(fmt.Errorf("enable devtools domain: %w", err))
		}
	}
	if err := d.refetch(ctx); err != nil {
		return fail(err)
	}

	go func() {
		defer close(d.done)
		wait()
	}()
	return d, nil
}

// refetch loads the frame tree and the full DOM and replaces the mirror.
func (d *Document) refetch(ctx context.Context) error {
	p := d.page.Context(ctx)
	tree, err := proto.PageGetFrameTree{}.Call(p)
	if err != nil {
		return fmt.Errorf("get frame tree: %w", err)
	}
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(p)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	d.mu.Lock()
	d.mainFrame = document.FrameID(tree.FrameTree.Frame.ID)
	d.dom.reset(res.Root)
	n := len(d.dom.nodes)
	d.releaseAllLocked()
	d.mu.Unlock()

	d.log.Debug("mirrored document", zap.Int("nodes", n), zap.String("frame", string(d.mainFrame)))
	return nil
}

func (d *Document) onAttributeModified(e *proto.DOMAttributeModified) {
	d.applyAttribute(document.NodeID(e.NodeID), e.Name, func(m *mirror) bool {
		return m.setAttr(document.NodeID(e.NodeID), e.Name, e.Value)
	})
}

func (d *Document) onAttributeRemoved(e *proto.DOMAttributeRemoved) {
	d.applyAttribute(document.NodeID(e.NodeID), e.Name, func(m *mirror) bool {
		return m.removeAttr(document.NodeID(e.NodeID), e.Name)
	})
}

// applyAttribute updates the mirror, notifies listeners and only then
// releases a SetAttribute waiting for this change.
func (d *Document) applyAttribute(node document.NodeID, name string, apply func(*mirror) bool) {
	d.mu.Lock()
	known := apply(d.dom)
	d.mu.Unlock()

	if known {
		d.listeners.Notify(node)
	}

	d.mu.Lock()
	d.releaseLocked(echoKey{node, name})
	d.mu.Unlock()
}

func (d *Document) onSetChildNodes(e *proto.DOMSetChildNodes) {
	d.mu.Lock()
	d.dom.setChildNodes(document.NodeID(e.ParentID), e.Nodes)
	d.mu.Unlock()
}

func (d *Document) onChildNodeInserted(e *proto.DOMChildNodeInserted) {
	d.mu.Lock()
	d.dom.insert(document.NodeID(e.ParentNodeID), document.NodeID(e.PreviousNodeID), e.Node)
	d.mu.Unlock()
}

func (d *Document) onChildNodeRemoved(e *proto.DOMChildNodeRemoved) {
	d.mu.Lock()
	d.dom.remove(document.NodeID(e.ParentNodeID), document.NodeID(e.NodeID))
	d.mu.Unlock()
}

func (d *Document) onDocumentUpdated(*proto.DOMDocumentUpdated) {
	// CDP calls must not run on the event goroutine.
	go func() {
		if err := d.refetch(d.ctx); err != nil {
			if d.ctx.Err() == nil {
				d.log.Warn("refetch after document update failed", zap.Error(err))
			}
			return
		}
		if d.opts.OnDocumentUpdated != nil {
			d.opts.OnDocumentUpdated()
		}
	}()
}

func (d *Document) onStyleSheetAdded(e *proto.CSSStyleSheetAdded) {
	if e.Header == nil {
		return
	}
	d.mu.Lock()
	d.sheets[document.StyleSheetID(e.Header.StyleSheetID)] = document.FrameID(e.Header.FrameID)
	d.mu.Unlock()
}

func (d *Document) onStyleSheetRemoved(e *proto.CSSStyleSheetRemoved) {
	d.mu.Lock()
	delete(d.sheets, document.StyleSheetID(e.StyleSheetID))
	d.mu.Unlock()
}

func (d *Document) releaseLocked(key echoKey) {
	for _, ch := range d.waiters[key] {
		close(ch)
	}
	delete(d.waiters, key)
}

func (d *Document) releaseAllLocked() {
	for key := range d.waiters {
		d.releaseLocked(key)
	}
}

// Attribute implements document.Document.
func (d *Document) Attribute(node document.NodeID, name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dom.attr(node, name)
}

// SetAttribute writes the attribute through DOM.setAttributeValue and
// returns once the resulting attributeModified event has been dispatched
// to mutation listeners, or after the echo timeout.
func (d *Document) SetAttribute(ctx context.Context, node document.NodeID, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return document.ErrClosed
	}
	current, ok := d.dom.attr(node, name)
	if _, known := d.dom.nodes[node]; !known {
		d.mu.Unlock()
		return document.ErrNoNode
	}
	// Chrome does not report a write that changes nothing.
	echo := !ok || current != value
	var ch chan struct{}
	if echo {
		ch = make(chan struct{})
		key := echoKey{node, name}
		d.waiters[key] = append(d.waiters[key], ch)
	}
	d.mu.Unlock()

	err := proto.DOMSetAttributeValue{
		NodeID: proto.DOMNodeID(node),
		Name:   name,
		Value:  value,
	}.Call(d.page.Context(ctx))
	if err != nil {
		if echo {
			d.dropWaiter(echoKey{node, name}, ch)
		}
		return fmt.Errorf("set %s on node %d: %w", name, node, err)
	}
	if !echo {
		return nil
	}

	timer := time.NewTimer(d.opts.EchoTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		d.dropWaiter(echoKey{node, name}, ch)
		d.log.Warn("no attributeModified echo",
			zap.Int64("node", int64(node)),
			zap.String("name", name),
			zap.Duration("timeout", d.opts.EchoTimeout))
		return nil
	case <-ctx.Done():
		d.dropWaiter(echoKey{node, name}, ch)
		return ctx.Err()
	}
}

func (d *Document) dropWaiter(key echoKey, ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.waiters[key]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.waiters, key)
	} else {
		d.waiters[key] = list
	}
}

// EnclosingElementOrSelf implements document.Document.
func (d *Document) EnclosingElementOrSelf(node document.NodeID) document.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dom.enclosingElementOrSelf(node)
}

// FrameScope implements document.Document.
func (d *Document) FrameScope(node document.NodeID) document.FrameID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dom.frameScope(node, d.mainFrame)
}

// OwnerDocument implements document.Document.
func (d *Document) OwnerDocument(node document.NodeID) document.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dom.ownerDocument(node)
}

// OnMutation implements document.Document. Callbacks run on the event
// goroutine.
func (d *Document) OnMutation(fn func(document.NodeID)) (cancel func()) {
	return d.listeners.Add(fn)
}

// StyleSheetsInFrame returns the ids of the stylesheets Chrome reported
// for frame, sorted.
func (d *Document) StyleSheetsInFrame(frame document.FrameID) []document.StyleSheetID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []document.StyleSheetID
	for id, f := range d.sheets {
		if f == frame {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StyleSheetClassNames asks Chrome for the class names used in a
// stylesheet's selectors.
func (d *Document) StyleSheetClassNames(ctx context.Context, id document.StyleSheetID) ([]string, error) {
	d.mu.RLock()
	_, ok := d.sheets[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stylesheet %s: %w", id, document.ErrNotFound)
	}
	res, err := proto.CSSCollectClassNames{StyleSheetID: proto.CSSStyleSheetID(id)}.Call(d.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("collect class names of %s: %w", id, err)
	}
	return res.ClassNames, nil
}

// DocumentClassNames returns the class names used by elements under the
// document node doc.
func (d *Document) DocumentClassNames(ctx context.Context, doc document.NodeID) ([]string, error) {
	d.mu.RLock()
	n, ok := d.dom.nodes[doc]
	d.mu.RUnlock()
	if !ok || n.nodeType != document.DocumentNode {
		return nil, document.ErrNoNode
	}
	res, err := proto.DOMCollectClassNamesFromSubtree{NodeID: proto.DOMNodeID(doc)}.Call(d.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("collect class names under node %d: %w", doc, err)
	}
	names := res.ClassNames
	sort.Strings(names)
	return names, nil
}

// QuerySelector resolves selector against the top document.
func (d *Document) QuerySelector(ctx context.Context, selector string) (document.NodeID, error) {
	d.mu.RLock()
	root := d.dom.root
	d.mu.RUnlock()
	if root == document.NoNode {
		return document.NoNode, document.ErrNoNode
	}
	res, err := proto.DOMQuerySelector{NodeID: proto.DOMNodeID(root), Selector: selector}.Call(d.page.Context(ctx))
	if err != nil {
		return document.NoNode, fmt.Errorf("query %q: %w", selector, err)
	}
	if res.NodeID == 0 {
		return document.NoNode, fmt.Errorf("query %q: %w", selector, document.ErrNotFound)
	}
	return document.NodeID(res.NodeID), nil
}

// Pick puts the page into inspect mode and returns the element the user
// clicks. It returns ctx.Err() when ctx ends first.
func (d *Document) Pick(ctx context.Context) (document.NodeID, error) {
	p := d.page.Context(ctx)
	if err := (proto.OverlayEnable{}).Call(p); err != nil {
		return document.NoNode, fmt.Errorf("enable overlay: %w", err)
	}

	var ev proto.OverlayInspectNodeRequested
	wait := p.WaitEvent(&ev)
	err := proto.OverlaySetInspectMode{
		Mode:            proto.OverlayInspectModeSearchForNode,
		HighlightConfig: &proto.OverlayHighlightConfig{ShowInfo: true},
	}.Call(p)
	if err != nil {
		return document.NoNode, fmt.Errorf("inspect mode: %w", err)
	}
	defer func() {
		_ = proto.OverlaySetInspectMode{Mode: proto.OverlayInspectModeNone}.Call(d.page)
	}()

	wait()
	if err := ctx.Err(); err != nil {
		return document.NoNode, err
	}

	res, err := proto.DOMPushNodesByBackendIDsToFrontend{
		BackendNodeIDs: []proto.DOMBackendNodeID{ev.BackendNodeID},
	}.Call(p)
	if err != nil {
		return document.NoNode, fmt.Errorf("resolve picked node: %w", err)
	}
	if len(res.NodeIDs) == 0 || res.NodeIDs[0] == 0 {
		return document.NoNode, document.ErrNoNode
	}
	return document.NodeID(res.NodeIDs[0]), nil
}

// Describe implements document.Backend.
func (d *Document) Describe(node document.NodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.dom.nodes[node]
	if !ok {
		return ""
	}
	if n.nodeType != document.ElementNode {
		return n.name
	}
	return document.Label(n.name, n.attrs["id"], n.attrs["class"])
}

// Close stops following page events and releases pending writes. The page
// itself is left open.
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.releaseAllLocked()
	d.mu.Unlock()

	d.cancel()
	<-d.done
	return nil
}
