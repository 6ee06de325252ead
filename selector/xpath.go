package selector

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/go-octopus/octopus/types"
)

// XPath selects nodes with an XPath expression, compiled once at
// construction. Element matches yield their serialized outer HTML; text and
// attribute matches yield the string value. An invalid expression panics.
func XPath(expr string, opts ...Option) Selector {
	o := newOptions(opts)
	compiled := xpath.MustCompile(expr)
	p := &pipeline{kind: fmt.Sprintf("xpath %q", expr), opts: o, content: true}
	p.raw = func(content string, _ *types.Response) ([]string, error) {
		doc, err := html.Parse(strings.NewReader(content))
		if err != nil {
			return nil, err
		}
		nodes := htmlquery.QuerySelectorAll(doc, compiled)
		out := make([]string, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, xpathNodeValue(n))
		}
		return out, nil
	}
	return p
}

func xpathNodeValue(n *html.Node) string {
	switch {
	case n.Type == html.TextNode:
		return n.Data
	case n.Type == html.ElementNode && n.Parent == nil:
		// htmlquery wraps @attr matches in a detached holder element
		// whose inner text is the attribute value.
		return htmlquery.InnerText(n)
	default:
		return htmlquery.OutputHTML(n, true)
	}
}
