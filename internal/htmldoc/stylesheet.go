package htmldoc

import (
	"sort"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ClassNamesInCSS returns the class names used in the selectors of a
// stylesheet, sorted. Rules nested in at-rules such as @media count; the
// preludes of the at-rules themselves do not.
func ClassNamesInCSS(text string) ([]string, error) {
	sheet, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	collectRules(sheet.Rules, seen)
	return sortedKeys(seen), nil
}

func collectRules(rules []*css.Rule, seen map[string]struct{}) {
	for _, r := range rules {
		if r.Kind == css.QualifiedRule {
			classNamesInSelector(r.Prelude, seen)
		}
		if len(r.Rules) > 0 {
			collectRules(r.Rules, seen)
		}
	}
}

// classNamesInSelector adds every identifier directly preceded by a "."
// delimiter, which is how a class selector tokenises.
func classNamesInSelector(prelude string, seen map[string]struct{}) {
	s := scanner.New(prelude)
	dot := false
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF, scanner.TokenError:
			return
		case scanner.TokenIdent:
			if dot {
				seen[unescapeIdent(tok.Value)] = struct{}{}
			}
			dot = false
		case scanner.TokenChar:
			dot = tok.Value == "."
		default:
			dot = false
		}
	}
}

// unescapeIdent undoes the simple backslash escapes utility frameworks use
// in class selectors, e.g. "md\:flex" or "w-1\/2".
func unescapeIdent(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// styleText returns the text content of a <style> element.
func styleText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func isStyle(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Style
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
