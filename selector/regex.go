package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-octopus/octopus/types"
)

// Regex selects substrings matching a regular expression, compiled once at
// construction. By default each match yields the whole matched text; Group
// picks a single capture group and Groups concatenates several per match.
// An invalid pattern or an out-of-range group panics.
func Regex(expr string, opts ...Option) Selector {
	o := newOptions(opts)
	re := regexp.MustCompile(expr)
	groups := o.groups
	if len(groups) == 0 {
		groups = []int{0}
	}
	for _, g := range groups {
		if g < 0 || g > re.NumSubexp() {
			panic(fmt.Sprintf("selector: regex group %d out of range for %q", g, expr))
		}
	}
	p := &pipeline{kind: fmt.Sprintf("regex %q", expr), opts: o, content: true}
	p.raw = func(content string, _ *types.Response) ([]string, error) {
		matches := re.FindAllStringSubmatch(content, -1)
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			if len(groups) == 1 {
				out = append(out, m[groups[0]])
				continue
			}
			var b strings.Builder
			for _, g := range groups {
				b.WriteString(m[g])
			}
			out = append(out, b.String())
		}
		return out, nil
	}
	return p
}
