// Package htmldoc is an offline document backend. It edits a local (or
// downloaded) HTML file in memory, extracts class names from its <style>
// elements and linked stylesheets, and can write the file back and follow
// outside edits to it.
//
// Linked stylesheets are fetched by Load and Reload relative to the
// document's source. Parse has no source, so it indexes inline sheets only.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"classpane/internal/document"
	"classpane/internal/logging"
)

// MainFrame is the frame scope of the top-level document.
const MainFrame document.FrameID = "main"

// maxDownload caps the size of a document fetched over HTTP.
const maxDownload = 32 << 20

// Options configures a Document.
type Options struct {
	// Autosave writes the file back after every attribute change. It has no
	// effect for documents loaded from a URL.
	Autosave bool

	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Document is an in-memory HTML document implementing document.Backend.
// It is safe for concurrent use.
type Document struct {
	src  string
	path string // empty when loaded from a URL or a reader
	opts Options
	log  *zap.Logger

	mu        sync.RWMutex
	tree      *tree
	lastSaved []byte
	closed    bool

	listeners document.Listeners
	watcher   *watcher
}

var _ document.Backend = (*Document)(nil)

// Load reads src, which is a file path or an http(s) URL, and parses it.
func Load(ctx context.Context, src string, opts Options) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryHTMLDoc, "load "+src)
	defer timer.Stop()

	data, err := fetch(ctx, src, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	d, err := Parse(bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	d.src = src
	d.tree.loadLinkedSheets(ctx, src, opts.HTTPClient, d.log)
	if !isURL(src) {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, err
		}
		d.path = abs
		d.lastSaved = data
	}
	return d, nil
}

// Parse builds a Document from r. The result has no backing file.
func Parse(r io.Reader, opts Options) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Get(logging.CategoryHTMLDoc)
	}
	d := &Document{
		opts: opts,
		log:  opts.Logger,
		tree: buildTree(root),
	}
	d.log.Debug("parsed document",
		zap.Int("nodes", len(d.tree.order)),
		zap.Int("frames", len(d.tree.sheets)))
	return d, nil
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func fetch(ctx context.Context, src string, client *http.Client) ([]byte, error) {
	if !isURL(src) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}
		return data, nil
	}
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", src, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

// Source returns the path or URL the document was loaded from.
func (d *Document) Source() string {
	return d.src
}

// Path returns the backing file, or "" when there is none.
func (d *Document) Path() string {
	return d.path
}

// Root returns the id of the top-level document node.
func (d *Document) Root() document.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree.rootID()
}

// Attribute implements document.Document.
func (d *Document) Attribute(node document.NodeID, name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.tree.nodes[node]
	if !ok || n.n.Type != html.ElementNode {
		return "", false
	}
	return getAttr(n.n, name)
}

// SetAttribute implements document.Document. Mutation listeners run before
// it returns, so the echo of a write always precedes its completion.
func (d *Document) SetAttribute(ctx context.Context, node document.NodeID, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return document.ErrClosed
	}
	n, ok := d.tree.nodes[node]
	if !ok || n.n.Type != html.ElementNode {
		d.mu.Unlock()
		return fmt.Errorf("set %s on %d: %w", name, node, document.ErrNoNode)
	}
	setAttr(n.n, name, value)
	if err := d.tree.syncSrcdoc(node); err != nil {
		d.log.Warn("failed to update iframe srcdoc", zap.Int64("node", int64(node)), zap.Error(err))
	}
	var saveErr error
	if d.opts.Autosave && d.path != "" {
		saveErr = d.saveLocked(d.path)
	}
	d.mu.Unlock()

	d.listeners.Notify(node)

	if saveErr != nil {
		return fmt.Errorf("autosave %s: %w", d.path, saveErr)
	}
	return nil
}

// EnclosingElementOrSelf implements document.Document.
func (d *Document) EnclosingElementOrSelf(node document.NodeID) document.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for node != document.NoNode {
		n, ok := d.tree.nodes[node]
		if !ok {
			return document.NoNode
		}
		if n.n.Type == html.ElementNode {
			return node
		}
		if n.n.Type == html.DocumentNode {
			return document.NoNode
		}
		node = n.parent
	}
	return document.NoNode
}

// FrameScope implements document.Document.
func (d *Document) FrameScope(node document.NodeID) document.FrameID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n, ok := d.tree.nodes[node]; ok {
		return n.frame
	}
	return ""
}

// OwnerDocument implements document.Document.
func (d *Document) OwnerDocument(node document.NodeID) document.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n, ok := d.tree.nodes[node]; ok {
		return n.owner
	}
	return document.NoNode
}

// OnMutation implements document.Document. Callbacks run on the goroutine
// that caused the change.
func (d *Document) OnMutation(fn func(document.NodeID)) (cancel func()) {
	return d.listeners.Add(fn)
}

// StyleSheetsInFrame implements document.StyleSheets.
func (d *Document) StyleSheetsInFrame(frame document.FrameID) []document.StyleSheetID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := d.tree.sheets[frame]
	out := make([]document.StyleSheetID, len(ids))
	copy(out, ids)
	return out
}

// StyleSheetClassNames implements document.StyleSheets. A sheet douceur
// could not parse reports its parse error.
func (d *Document) StyleSheetClassNames(ctx context.Context, id document.StyleSheetID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err, ok := d.tree.sheetErrs[id]; ok {
		return nil, err
	}
	names, ok := d.tree.sheetNames[id]
	if !ok {
		return nil, fmt.Errorf("stylesheet %s: %w", id, document.ErrNotFound)
	}
	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// DocumentClassNames implements document.ClassIndex.
func (d *Document) DocumentClassNames(ctx context.Context, doc document.NodeID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.tree.nodes[doc]
	if !ok || n.n.Type != html.DocumentNode {
		return nil, fmt.Errorf("document %d: %w", doc, document.ErrNoNode)
	}
	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.ElementNode {
			if class, ok := getAttr(h, "class"); ok {
				for _, name := range strings.Fields(class) {
					seen[name] = struct{}{}
				}
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.n)
	return sortedKeys(seen), nil
}

// QuerySelector implements document.Selector using cascadia on the top
// document.
func (d *Document) QuerySelector(ctx context.Context, selector string) (document.NodeID, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return document.NoNode, fmt.Errorf("selector %q: %w", selector, err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	match := sel.MatchFirst(d.tree.root)
	if match == nil {
		return document.NoNode, fmt.Errorf("selector %q: %w", selector, document.ErrNotFound)
	}
	return d.tree.ids[match], nil
}

// Describe implements document.Backend.
func (d *Document) Describe(node document.NodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.tree.nodes[node]
	if !ok {
		return ""
	}
	switch n.n.Type {
	case html.ElementNode:
		id, _ := getAttr(n.n, "id")
		class, _ := getAttr(n.n, "class")
		return document.Label(n.n.Data, id, class)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return ""
}

// NodeType returns the DOM nodeType of node, or 0 when it is unknown.
func (d *Document) NodeType(node document.NodeID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.tree.nodes[node]
	if !ok {
		return 0
	}
	return domNodeType(n.n.Type)
}

// Render writes the current top-level document to w.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.tree.root)
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked(path)
}

func (d *Document) saveLocked(path string) error {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.tree.root); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	if path == d.path {
		d.lastSaved = buf.Bytes()
	}
	return nil
}

// Close stops the watcher, if any. Later writes fail with
// document.ErrClosed.
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	w := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	if w != nil {
		return w.stop()
	}
	return nil
}

func domNodeType(t html.NodeType) int {
	switch t {
	case html.ElementNode:
		return document.ElementNode
	case html.TextNode:
		return document.TextNode
	case html.CommentNode:
		return document.CommentNode
	case html.DocumentNode:
		return document.DocumentNode
	}
	return 0
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func isIframe(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Iframe
}
