package selector

import (
	"fmt"
	neturl "net/url"

	"github.com/go-octopus/octopus/types"
)

// Request-scoped selectors read from the request that produced the response
// rather than from the body, so they work on any response including binary
// ones. They are typically combined with Format to build derived values.

// Attr selects the named attribute from the request, as set by a parent
// link's attribute propagation or by hand. List values yield one string per
// element.
func Attr(name string, opts ...Option) Selector {
	p := &pipeline{kind: fmt.Sprintf("attr %q", name), opts: newOptions(opts)}
	p.raw = func(_ string, resp *types.Response) ([]string, error) {
		req := requestOf(resp)
		if req == nil {
			return nil, nil
		}
		return valueStrings(req.Attrs[name]), nil
	}
	return p
}

// Query selects the named query parameter, preferring the request's explicit
// queries and falling back to the parameters embedded in the URL.
func Query(name string, opts ...Option) Selector {
	p := &pipeline{kind: fmt.Sprintf("query %q", name), opts: newOptions(opts)}
	p.raw = func(_ string, resp *types.Response) ([]string, error) {
		req := requestOf(resp)
		if req == nil {
			return nil, nil
		}
		if vals, ok := req.Queries[name]; ok {
			return append([]string(nil), vals...), nil
		}
		u, err := neturl.Parse(req.URL)
		if err != nil {
			return nil, nil
		}
		if vals, ok := u.Query()[name]; ok {
			return append([]string(nil), vals...), nil
		}
		return nil, nil
	}
	return p
}

// Header selects the named request header. The name must match the header
// as it was set on the request.
func Header(name string, opts ...Option) Selector {
	p := &pipeline{kind: fmt.Sprintf("header %q", name), opts: newOptions(opts)}
	p.raw = func(_ string, resp *types.Response) ([]string, error) {
		req := requestOf(resp)
		if req == nil {
			return nil, nil
		}
		if v, ok := req.Headers[name]; ok {
			return []string{v}, nil
		}
		return nil, nil
	}
	return p
}

// URL selects the request URL. Encoded and Decoded yield its percent-encoded
// or percent-decoded form instead.
func URL(opts ...Option) Selector {
	o := newOptions(opts)
	p := &pipeline{kind: "url", opts: o}
	p.raw = func(_ string, resp *types.Response) ([]string, error) {
		req := requestOf(resp)
		if req == nil {
			return nil, nil
		}
		u := req.URL
		switch {
		case o.encode:
			u = neturl.QueryEscape(u)
		case o.decode:
			decoded, err := neturl.QueryUnescape(u)
			if err != nil {
				return nil, err
			}
			u = decoded
		}
		return []string{u}, nil
	}
	return p
}

// ID selects the request's computed identity.
func ID(opts ...Option) Selector {
	p := &pipeline{kind: "id", opts: newOptions(opts)}
	p.raw = func(_ string, resp *types.Response) ([]string, error) {
		req := requestOf(resp)
		if req == nil {
			return nil, nil
		}
		return []string{req.ID}, nil
	}
	return p
}

func valueStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []string:
		return append([]string(nil), x...)
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
