// Package selector implements the extraction DSL. A Selector pulls a list of
// raw strings out of a response (from its body, its request, or its URL) and
// feeds them through a shared post-processing pipeline: trim each value, drop
// empty values, apply a format template, apply a converter, then return
// either the whole list or the first element.
//
// Selectors compose: From(inner) runs another selector first and applies the
// outer one to each of its outputs, enabling pipelines such as
// Regex(`/(\d+)/`, Group(1), From(XPath(`//a/@href`))).
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-octopus/octopus/convert"
	"github.com/go-octopus/octopus/types"
)

// Selector extracts a value from a response. The content argument is the
// decoded body text, or a fragment of it when the selector runs nested
// inside another one. The returned value is a string or []string, or any
// converted form once a Converter is configured; it is nil when nothing
// matched in single mode.
type Selector interface {
	Select(content string, resp *types.Response) (any, error)
}

// Option configures a selector at construction time.
type Option func(*options)

type options struct {
	multi       bool
	trim        bool
	filterEmpty bool
	format      string
	converter   convert.Converter
	inner       Selector

	// css
	text     bool
	htmlAttr string

	// regex
	groups []int

	// url
	encode bool
	decode bool
}

func newOptions(opts []Option) options {
	o := options{trim: true, filterEmpty: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Multi makes the selector return every match as a list instead of only the
// first one.
func Multi() Option { return func(o *options) { o.multi = true } }

// NoTrim disables the whitespace trimming applied to each extracted value.
func NoTrim() Option { return func(o *options) { o.trim = false } }

// KeepEmpty keeps empty values instead of dropping them from the result.
func KeepEmpty() Option { return func(o *options) { o.filterEmpty = false } }

// Format substitutes each extracted value into a printf-style template; the
// value is passed as the sole argument, so the template normally contains a
// single %s verb.
func Format(template string) Option { return func(o *options) { o.format = template } }

// Convert maps each extracted value through the given converter. In single
// mode the converter also runs on an empty string when nothing matched, so
// converters with defaults still produce a value.
func Convert(c convert.Converter) Option { return func(o *options) { o.converter = c } }

// From chains another selector in front of this one. The inner selector runs
// against the original content and each of its outputs becomes an input of
// the outer selector.
func From(inner Selector) Option { return func(o *options) { o.inner = inner } }

// Text makes a CSS selector yield the text content of each match instead of
// its outer HTML.
func Text() Option { return func(o *options) { o.text = true } }

// HTMLAttr makes a CSS selector yield the named attribute of each match
// instead of its outer HTML.
func HTMLAttr(name string) Option { return func(o *options) { o.htmlAttr = name } }

// Group selects which capture group a regex selector yields. Group 0 is the
// whole match.
func Group(n int) Option { return func(o *options) { o.groups = []int{n} } }

// Groups concatenates several capture groups per match, in the given order.
func Groups(ns ...int) Option { return func(o *options) { o.groups = ns } }

// Encoded makes the URL selector yield the percent-encoded request URL.
func Encoded() Option { return func(o *options) { o.encode = true } }

// Decoded makes the URL selector yield the percent-decoded request URL.
func Decoded() Option { return func(o *options) { o.decode = true } }

// rawFunc produces the raw string matches for one input fragment.
type rawFunc func(content string, resp *types.Response) ([]string, error)

// pipeline is the shared implementation behind every selector constructor.
// Only the raw function differs between variants.
type pipeline struct {
	kind string
	opts options
	// content marks selectors that parse the body; they skip empty input
	// fragments. Request-scoped selectors run regardless of content.
	content bool
	raw     rawFunc
}

func (p *pipeline) Select(content string, resp *types.Response) (any, error) {
	inputs := []string{content}
	if p.opts.inner != nil {
		iv, err := p.opts.inner.Select(content, resp)
		if err != nil {
			return nil, err
		}
		inputs = asStrings(iv)
	}

	var selected []string
	for _, in := range inputs {
		if p.content && in == "" {
			continue
		}
		vals, err := p.raw(in, resp)
		if err != nil {
			return nil, p.wrap(resp, err)
		}
		selected = append(selected, vals...)
	}
	return p.finish(resp, selected)
}

// finish applies the shared pipeline steps in order.
func (p *pipeline) finish(resp *types.Response, vals []string) (any, error) {
	o := &p.opts
	if o.trim {
		for i, v := range vals {
			vals[i] = strings.TrimSpace(v)
		}
	}
	if o.filterEmpty {
		kept := vals[:0]
		for _, v := range vals {
			if v != "" {
				kept = append(kept, v)
			}
		}
		vals = kept
	}
	if o.format != "" {
		for i, v := range vals {
			vals[i] = fmt.Sprintf(o.format, v)
		}
	}

	if o.converter != nil {
		if o.multi {
			out := make([]any, 0, len(vals))
			for _, v := range vals {
				cv, err := o.converter(v)
				if err != nil {
					return nil, p.wrap(resp, err)
				}
				out = append(out, cv)
			}
			return out, nil
		}
		// Single mode always invokes the converter, with an empty string
		// when nothing matched, so defaults apply.
		in := ""
		if len(vals) > 0 {
			in = vals[0]
		}
		cv, err := o.converter(in)
		if err != nil {
			return nil, p.wrap(resp, err)
		}
		return cv, nil
	}

	if o.multi {
		return vals, nil
	}
	if len(vals) > 0 {
		return vals[0], nil
	}
	return nil, nil
}

func (p *pipeline) wrap(resp *types.Response, err error) error {
	var xe *types.ExtractionError
	if errors.As(err, &xe) {
		return err
	}
	return &types.ExtractionError{
		URL: requestURL(resp),
		Err: fmt.Errorf("%s: %w", p.kind, err),
	}
}

func requestURL(resp *types.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	return resp.Request.URL
}

func requestOf(resp *types.Response) *types.Request {
	if resp == nil {
		return nil
	}
	return resp.Request
}

// asStrings normalizes an inner selector's output into input fragments for
// the outer selector.
func asStrings(v any) []string {
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
