package selector

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/go-octopus/octopus/types"
)

// CSS selects HTML elements with a CSS selector expression. Each match
// yields its outer HTML by default; Text() yields its text content and
// HTMLAttr(name) the value of a named attribute instead. Elements missing
// the requested attribute yield an empty value, which the pipeline drops
// unless KeepEmpty is set.
func CSS(expr string, opts ...Option) Selector {
	o := newOptions(opts)
	p := &pipeline{kind: fmt.Sprintf("css %q", expr), opts: o, content: true}
	p.raw = func(content string, _ *types.Response) ([]string, error) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return nil, err
		}
		var out []string
		var renderErr error
		doc.Find(expr).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			switch {
			case o.htmlAttr != "":
				v, _ := s.Attr(o.htmlAttr)
				out = append(out, v)
			case o.text:
				out = append(out, s.Text())
			default:
				h, err := goquery.OuterHtml(s)
				if err != nil {
					renderErr = err
					return false
				}
				out = append(out, h)
			}
			return true
		})
		if renderErr != nil {
			return nil, renderErr
		}
		return out, nil
	}
	return p
}
