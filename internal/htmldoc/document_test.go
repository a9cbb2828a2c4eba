package htmldoc

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classpane/internal/document"
)

const page = `<!DOCTYPE html>
<html>
<head>
<style>.btn { color: red } .card .title {}</style>
<style>@media print { .no-print { display: none } }</style>
</head>
<body>
<div id="main" class="card shadow">hello<span class="title">t</span></div>
<iframe id="frame" srcdoc="&lt;style&gt;.inner-only{}&lt;/style&gt;&lt;p class=&quot;inside&quot;&gt;x&lt;/p&gt;"></iframe>
</body>
</html>`

func parsePage(t *testing.T, opts Options) *Document {
	t.Helper()
	d, err := Parse(strings.NewReader(page), opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func mustQuery(t *testing.T, d *Document, sel string) document.NodeID {
	t.Helper()
	id, err := d.QuerySelector(context.Background(), sel)
	require.NoError(t, err)
	return id
}

func TestDocument_AttributeAndQuery(t *testing.T) {
	d := parsePage(t, Options{})

	main := mustQuery(t, d, "#main")
	class, ok := d.Attribute(main, "class")
	require.True(t, ok)
	assert.Equal(t, "card shadow", class)
	assert.Equal(t, "div#main.card.shadow", d.Describe(main))
	assert.Equal(t, document.ElementNode, d.NodeType(main))

	_, ok = d.Attribute(main, "title")
	assert.False(t, ok)

	_, err := d.QuerySelector(context.Background(), ".missing")
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = d.QuerySelector(context.Background(), "div[")
	assert.Error(t, err)
}

func TestDocument_EnclosingElementOrSelf(t *testing.T) {
	d := parsePage(t, Options{})
	main := mustQuery(t, d, "#main")

	d.mu.RLock()
	text := d.tree.ids[d.tree.nodes[main].n.FirstChild]
	d.mu.RUnlock()

	assert.Equal(t, document.TextNode, d.NodeType(text))
	assert.Equal(t, main, d.EnclosingElementOrSelf(text))
	assert.Equal(t, main, d.EnclosingElementOrSelf(main))
	assert.Equal(t, document.NoNode, d.EnclosingElementOrSelf(d.Root()))
	assert.Equal(t, document.NoNode, d.EnclosingElementOrSelf(9999))
}

func TestDocument_StyleSheetsPerFrame(t *testing.T) {
	d := parsePage(t, Options{})
	ctx := context.Background()

	main := mustQuery(t, d, "#main")
	assert.Equal(t, MainFrame, d.FrameScope(main))

	var names []string
	for _, id := range d.StyleSheetsInFrame(MainFrame) {
		got, err := d.StyleSheetClassNames(ctx, id)
		require.NoError(t, err)
		names = append(names, got...)
	}
	assert.ElementsMatch(t, []string{"btn", "card", "title", "no-print"}, names)

	frame := mustQuery(t, d, "#frame")
	inner := frameOf(frame)
	sheets := d.StyleSheetsInFrame(inner)
	require.Len(t, sheets, 1)
	got, err := d.StyleSheetClassNames(ctx, sheets[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"inner-only"}, got)

	_, err = d.StyleSheetClassNames(ctx, "nope")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestDocument_DocumentClassNamesPerOwner(t *testing.T) {
	d := parsePage(t, Options{})
	ctx := context.Background()

	main := mustQuery(t, d, "#main")
	got, err := d.DocumentClassNames(ctx, d.OwnerDocument(main))
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"card", "shadow", "title"}, got); diff != "" {
		t.Errorf("top document classes mismatch (-want +got):\n%s", diff)
	}

	inside := findInFrame(t, d, "p")
	assert.NotEqual(t, d.OwnerDocument(main), d.OwnerDocument(inside))
	got, err = d.DocumentClassNames(ctx, d.OwnerDocument(inside))
	require.NoError(t, err)
	assert.Equal(t, []string{"inside"}, got)

	_, err = d.DocumentClassNames(ctx, main)
	assert.ErrorIs(t, err, document.ErrNoNode)
}

func TestDocument_SetAttributeNotifiesBeforeReturning(t *testing.T) {
	d := parsePage(t, Options{})
	main := mustQuery(t, d, "#main")

	var mu sync.Mutex
	var seen []document.NodeID
	cancel := d.OnMutation(func(n document.NodeID) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, d.SetAttribute(context.Background(), main, "class", "card"))
	mu.Lock()
	assert.Equal(t, []document.NodeID{main}, seen)
	mu.Unlock()

	class, _ := d.Attribute(main, "class")
	assert.Equal(t, "card", class)

	var buf bytes.Buffer
	require.NoError(t, d.Render(&buf))
	assert.Contains(t, buf.String(), `<div id="main" class="card">`)
}

func TestDocument_SetAttributeInsideSrcdocUpdatesHost(t *testing.T) {
	d := parsePage(t, Options{})
	inside := findInFrame(t, d, "p")

	require.NoError(t, d.SetAttribute(context.Background(), inside, "class", "inside edited"))

	frame := mustQuery(t, d, "#frame")
	srcdoc, ok := d.Attribute(frame, "srcdoc")
	require.True(t, ok)
	assert.Contains(t, srcdoc, `class="inside edited"`)
}

func TestDocument_SetAttributeErrors(t *testing.T) {
	d := parsePage(t, Options{})
	ctx := context.Background()

	err := d.SetAttribute(ctx, 9999, "class", "x")
	assert.ErrorIs(t, err, document.ErrNoNode)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, d.SetAttribute(cctx, mustQuery(t, d, "#main"), "class", "x"), context.Canceled)

	main := mustQuery(t, d, "#main")
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.SetAttribute(ctx, main, "class", "x"), document.ErrClosed)
}

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0644))
	return path
}

func TestDocument_AutosaveWritesFile(t *testing.T) {
	path := writePage(t)
	d, err := Load(context.Background(), path, Options{Autosave: true})
	require.NoError(t, err)
	defer d.Close()

	main := mustQuery(t, d, "#main")
	require.NoError(t, d.SetAttribute(context.Background(), main, "class", "saved"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `class="saved"`)

	changed, err := d.Reload(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed, "our own save is not an outside edit")
}

func TestDocument_ReloadReportsChangedElements(t *testing.T) {
	path := writePage(t)
	d, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	defer d.Close()
	main := mustQuery(t, d, "#main")

	edited := strings.Replace(page, `class="card shadow"`, `class="card"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	changed, err := d.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []document.NodeID{main}, changed)
	class, _ := d.Attribute(main, "class")
	assert.Equal(t, "card", class)

	restructured := strings.Replace(edited, `<span class="title">t</span>`, ``, 1)
	require.NoError(t, os.WriteFile(path, []byte(restructured), 0644))
	changed, err = d.Reload(context.Background())
	require.NoError(t, err)
	assert.Contains(t, changed, main)
	assert.Greater(t, len(changed), 1, "a structural change reports every element")
}

func TestDocument_WatchAppliesOutsideEdits(t *testing.T) {
	path := writePage(t)
	d, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	defer d.Close()

	main := mustQuery(t, d, "#main")
	notified := make(chan document.NodeID, 16)
	d.OnMutation(func(n document.NodeID) { notified <- n })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Watch(ctx))

	edited := strings.Replace(page, `class="card shadow"`, `class="outside"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	select {
	case n := <-notified:
		assert.Equal(t, main, n)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the outside edit")
	}
	class, _ := d.Attribute(main, "class")
	assert.Equal(t, "outside", class)
}

func TestDocument_WatchNeedsLocalFile(t *testing.T) {
	d := parsePage(t, Options{})
	assert.Error(t, d.Watch(context.Background()))
}

func TestLoad_FromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	d, err := Load(context.Background(), srv.URL+"/page", Options{Autosave: true})
	require.NoError(t, err)
	defer d.Close()
	assert.Empty(t, d.Path())

	main := mustQuery(t, d, "#main")
	require.NoError(t, d.SetAttribute(context.Background(), main, "class", "x"), "autosave is ignored for URLs")

	_, err = Load(context.Background(), srv.URL+"/missing", Options{})
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.html"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func findInFrame(t *testing.T, d *Document, tag string) document.NodeID {
	t.Helper()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, id := range d.tree.order {
		n := d.tree.nodes[id]
		if n.frame != MainFrame && n.n.Data == tag {
			return id
		}
	}
	t.Fatalf("no <%s> in a child frame", tag)
	return document.NoNode
}
