package htmldoc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"classpane/internal/document"
)

// linkedSheet is a <link rel="stylesheet"> found while indexing. Its text
// is only known once loadLinkedSheets has fetched it.
type linkedSheet struct {
	frame document.FrameID
	node  document.NodeID
	href  string
}

func isStylesheetLink(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Link {
		return false
	}
	rel, _ := getAttr(n, "rel")
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, "stylesheet") {
			return true
		}
	}
	return false
}

// resolveHref resolves href against src, which is an http(s) URL or a
// local path. For local documents a root-relative href is taken relative
// to the document's directory.
func resolveHref(src, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if isURL(src) {
		base, err := url.Parse(src)
		if err != nil {
			return "", err
		}
		ref = base.ResolveReference(ref)
	} else if ref.Scheme == "" && ref.Host != "" {
		ref.Scheme = "https"
	}
	switch {
	case ref.Scheme == "http" || ref.Scheme == "https":
		return ref.String(), nil
	case ref.Scheme != "":
		return "", fmt.Errorf("unsupported scheme %q", ref.Scheme)
	case ref.Path == "":
		return "", fmt.Errorf("empty href")
	}
	rel := filepath.FromSlash(strings.TrimPrefix(ref.Path, "/"))
	return filepath.Join(filepath.Dir(src), rel), nil
}

// loadLinkedSheets fetches the linked stylesheets of t and indexes them
// like inline ones. A sheet that cannot be fetched is logged and left out.
func (t *tree) loadLinkedSheets(ctx context.Context, src string, client *http.Client, log *zap.Logger) {
	for _, l := range t.links {
		target, err := resolveHref(src, l.href)
		var data []byte
		if err == nil {
			data, err = fetch(ctx, target, client)
		}
		if err != nil {
			log.Warn("skipping linked stylesheet",
				zap.String("href", l.href),
				zap.Error(err))
			continue
		}
		t.addSheet(l.frame, sheetID(l.frame, "link", l.node), string(data))
	}
}
