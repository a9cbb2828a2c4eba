package htmldoc

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"classpane/internal/document"
)

// node is the index entry for one html.Node.
type node struct {
	n      *html.Node
	parent document.NodeID
	frame  document.FrameID
	owner  document.NodeID // document node of the frame
	host   document.NodeID // iframe element whose srcdoc holds this frame, NoNode in the main frame
}

// tree indexes a parsed document. Ids are assigned in pre-order, so two
// parses of the same markup give every node the same id. Each
// <iframe srcdoc> is parsed into its own document right after the iframe's
// own children.
type tree struct {
	root  *html.Node
	nodes map[document.NodeID]*node
	ids   map[*html.Node]document.NodeID
	order []document.NodeID

	sheets     map[document.FrameID][]document.StyleSheetID
	sheetNames map[document.StyleSheetID][]string
	sheetErrs  map[document.StyleSheetID]error
	links      []linkedSheet
}

func buildTree(root *html.Node) *tree {
	t := &tree{
		root:       root,
		nodes:      make(map[document.NodeID]*node),
		ids:        make(map[*html.Node]document.NodeID),
		sheets:     make(map[document.FrameID][]document.StyleSheetID),
		sheetNames: make(map[document.StyleSheetID][]string),
		sheetErrs:  make(map[document.StyleSheetID]error),
	}
	var next document.NodeID

	var walk func(h *html.Node, parent document.NodeID, frame document.FrameID, owner, host document.NodeID)
	walk = func(h *html.Node, parent document.NodeID, frame document.FrameID, owner, host document.NodeID) {
		next++
		id := next
		if h.Type == html.DocumentNode {
			owner = id
		}
		t.nodes[id] = &node{n: h, parent: parent, frame: frame, owner: owner, host: host}
		t.ids[h] = id
		t.order = append(t.order, id)

		if isStyle(h) {
			t.addSheet(frame, sheetID(frame, "style", id), styleText(h))
		}
		if isStylesheetLink(h) {
			if href, ok := getAttr(h, "href"); ok && strings.TrimSpace(href) != "" {
				t.links = append(t.links, linkedSheet{frame: frame, node: id, href: href})
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c, id, frame, owner, host)
		}
		if isIframe(h) {
			if srcdoc, ok := getAttr(h, "srcdoc"); ok {
				sub, err := html.Parse(strings.NewReader(srcdoc))
				if err == nil {
					walk(sub, id, frameOf(id), document.NoNode, id)
				}
			}
		}
	}
	walk(root, document.NoNode, MainFrame, document.NoNode, document.NoNode)
	return t
}

func frameOf(iframe document.NodeID) document.FrameID {
	return document.FrameID(fmt.Sprintf("frame-%d", iframe))
}

func sheetID(frame document.FrameID, kind string, node document.NodeID) document.StyleSheetID {
	return document.StyleSheetID(fmt.Sprintf("%s/%s-%d", frame, kind, node))
}

func (t *tree) addSheet(frame document.FrameID, id document.StyleSheetID, text string) {
	t.sheets[frame] = append(t.sheets[frame], id)
	names, err := ClassNamesInCSS(text)
	if err != nil {
		t.sheetErrs[id] = fmt.Errorf("stylesheet %s: %w", id, err)
		return
	}
	t.sheetNames[id] = names
}

func (t *tree) rootID() document.NodeID {
	return t.ids[t.root]
}

// syncSrcdoc re-renders the srcdoc documents enclosing node into their
// iframe hosts, innermost first.
func (t *tree) syncSrcdoc(id document.NodeID) error {
	cur, ok := t.nodes[id]
	for ok && cur.host != document.NoNode {
		doc := t.nodes[cur.owner]
		host := t.nodes[cur.host]
		var buf bytes.Buffer
		if err := html.Render(&buf, doc.n); err != nil {
			return err
		}
		setAttr(host.n, "srcdoc", buf.String())
		cur, ok = t.nodes[cur.host]
	}
	return nil
}

// sameShape reports whether other has the same node ids with the same
// node types and tag names.
func (t *tree) sameShape(other *tree) bool {
	if len(t.order) != len(other.order) {
		return false
	}
	for i, id := range t.order {
		if other.order[i] != id {
			return false
		}
		a, b := t.nodes[id].n, other.nodes[id].n
		if a.Type != b.Type {
			return false
		}
		if a.Type == html.ElementNode && a.Data != b.Data {
			return false
		}
	}
	return true
}

// changedElements returns the elements whose attributes differ between t
// and a tree of the same shape.
func (t *tree) changedElements(other *tree) []document.NodeID {
	var out []document.NodeID
	for _, id := range t.order {
		a, b := t.nodes[id].n, other.nodes[id].n
		if a.Type != html.ElementNode {
			continue
		}
		if !sameAttrs(a.Attr, b.Attr) {
			out = append(out, id)
		}
	}
	return out
}

func sameAttrs(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[string]string, len(a))
	for _, attr := range a {
		index[attr.Namespace+"\x00"+attr.Key] = attr.Val
	}
	for _, attr := range b {
		v, ok := index[attr.Namespace+"\x00"+attr.Key]
		if !ok || v != attr.Val {
			return false
		}
	}
	return true
}

// elements returns every element id in pre-order.
func (t *tree) elements() []document.NodeID {
	var out []document.NodeID
	for _, id := range t.order {
		if t.nodes[id].n.Type == html.ElementNode {
			out = append(out, id)
		}
	}
	return out
}
