package extract

import (
	"fmt"

	"github.com/go-octopus/octopus/types"
)

// Bind runs a schema against one response. Fields bind in declaration
// order, embedded schemas bind recursively over the fragments their
// selector carved out, and link descriptors evaluate last, against the
// fully bound result. The returned requests carry no parent or depth yet;
// the engine fills those in when they are enqueued.
func Bind(schema *Schema, content string, resp *types.Response) (*Result, []*types.Request, error) {
	res := newResult()
	var links []*types.Request

	for _, f := range schema.fields {
		if f.sel != nil {
			v, err := f.sel.Select(content, resp)
			if err != nil {
				return nil, nil, err
			}
			res.Set(f.name, v)
			continue
		}

		v, err := f.embed.sel.Select(content, resp)
		if err != nil {
			return nil, nil, err
		}
		switch frags := v.(type) {
		case nil:
			res.Set(f.name, nil)
		case string:
			inner, innerLinks, err := Bind(f.embed.inner, frags, resp)
			if err != nil {
				return nil, nil, err
			}
			res.Set(f.name, inner)
			links = append(links, innerLinks...)
		case []string:
			list := make([]*Result, 0, len(frags))
			for _, frag := range frags {
				inner, innerLinks, err := Bind(f.embed.inner, frag, resp)
				if err != nil {
					return nil, nil, err
				}
				list = append(list, inner)
				links = append(links, innerLinks...)
			}
			res.Set(f.name, list)
		default:
			return nil, nil, &types.ExtractionError{
				URL: requestURL(resp),
				Err: fmt.Errorf("embed %q: selector produced %T, want string content", f.name, v),
			}
		}
	}

	for _, l := range schema.links {
		if l.terminable != nil && l.terminable(res, content, resp) {
			continue
		}
		v, err := l.selector.Select(content, resp)
		if err != nil {
			return nil, nil, err
		}
		for _, u := range urlStrings(v) {
			child := &types.Request{
				URL:        u,
				Method:     l.method,
				Queries:    cloneQueries(l.queries),
				Data:       append([]byte(nil), l.data...),
				Headers:    cloneHeaders(l.headers),
				Priority:   l.priority,
				Repeatable: l.repeatable,
				Inherit:    l.inherit,
				State:      types.StateNew,
			}
			if err := child.Validate(); err != nil {
				return nil, nil, err
			}
			for _, name := range l.attrProps {
				if val, ok := res.values[name]; ok {
					if child.Attrs == nil {
						child.Attrs = make(map[string]any, len(l.attrProps))
					}
					child.Attrs[name] = toPlain(val)
				}
			}
			links = append(links, child)
		}
	}

	return res, links, nil
}

func requestURL(resp *types.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return resp.Request.URL
}

func urlStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

func cloneQueries(q map[string][]string) map[string][]string {
	if q == nil {
		return nil
	}
	out := make(map[string][]string, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
