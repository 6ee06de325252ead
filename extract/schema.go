// Package extract binds response content to named fields through selectors
// and discovers follow-up links. A Schema declares fields, nested schemas
// and link descriptors; Bind runs it against one response and produces a
// Result plus the child requests the links yielded.
package extract

import (
	"net/http"

	"github.com/go-octopus/octopus/selector"
	"github.com/go-octopus/octopus/types"
)

// Terminable decides whether a link is skipped for a given bound result,
// typically to stop pagination once a condition is met.
type Terminable func(res *Result, content string, resp *types.Response) bool

// Link describes how to turn selected URL strings into child requests.
// Construct it with NewLink so defaults apply.
type Link struct {
	selector   selector.Selector
	method     string
	queries    map[string][]string
	data       []byte
	headers    map[string]string
	priority   int
	repeatable bool
	attrProps  []string
	inherit    bool
	terminable Terminable
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithMethod sets the HTTP method of the child requests; GET by default.
func WithMethod(method string) LinkOption {
	return func(l *Link) { l.method = method }
}

// WithQueries sets extra query parameters on the child requests.
func WithQueries(queries map[string][]string) LinkOption {
	return func(l *Link) { l.queries = queries }
}

// WithData sets the request body on the child requests.
func WithData(data []byte) LinkOption {
	return func(l *Link) { l.data = data }
}

// WithHeaders sets request headers on the child requests.
func WithHeaders(headers map[string]string) LinkOption {
	return func(l *Link) { l.headers = headers }
}

// WithPriority sets the scheduling priority of the child requests.
func WithPriority(priority int) LinkOption {
	return func(l *Link) { l.priority = priority }
}

// WithRepeatable controls whether child requests bypass the already-seen
// check; true by default.
func WithRepeatable(repeatable bool) LinkOption {
	return func(l *Link) { l.repeatable = repeatable }
}

// WithAttrProps names bound result fields to copy into each child request's
// attributes.
func WithAttrProps(names ...string) LinkOption {
	return func(l *Link) { l.attrProps = names }
}

// WithInherit makes child requests inherit the parent's headers and
// attributes.
func WithInherit(inherit bool) LinkOption {
	return func(l *Link) { l.inherit = inherit }
}

// WithTerminable sets a predicate that skips the link when it returns true.
func WithTerminable(fn Terminable) LinkOption {
	return func(l *Link) { l.terminable = fn }
}

// NewLink creates a link descriptor around a selector producing URL strings.
func NewLink(sel selector.Selector, opts ...LinkOption) *Link {
	l := &Link{
		selector:   sel,
		method:     http.MethodGet,
		repeatable: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// fieldDef is one declared binding; exactly one of sel or embed is set.
type fieldDef struct {
	name  string
	sel   selector.Selector
	embed *embedDef
}

type embedDef struct {
	sel   selector.Selector
	inner *Schema
}

// Schema declares an ordered set of field bindings plus link descriptors.
// Fields bind in declaration order; a redeclared name keeps its original
// position but takes the new selector.
type Schema struct {
	fields []fieldDef
	links  []*Link
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{}
}

// Field binds a field name to a selector.
func (s *Schema) Field(name string, sel selector.Selector) *Schema {
	s.put(fieldDef{name: name, sel: sel})
	return s
}

// Embed binds a field to a nested schema. The selector carves out the
// content fragment(s); the inner schema binds over each fragment, yielding a
// *Result, or a []*Result when the selector is multi-valued.
func (s *Schema) Embed(name string, sel selector.Selector, inner *Schema) *Schema {
	s.put(fieldDef{name: name, embed: &embedDef{sel: sel, inner: inner}})
	return s
}

// Link adds a link descriptor evaluated after all fields are bound.
func (s *Schema) Link(links ...*Link) *Schema {
	s.links = append(s.links, links...)
	return s
}

// Extend copies the base schema's declarations in front of this schema's
// own. Base fields keep their order; names this schema already declares win
// over the base's.
func (s *Schema) Extend(base *Schema) *Schema {
	merged := make([]fieldDef, 0, len(base.fields)+len(s.fields))
	for _, f := range base.fields {
		if !s.declares(f.name) {
			merged = append(merged, f)
		}
	}
	s.fields = append(merged, s.fields...)
	s.links = append(append([]*Link(nil), base.links...), s.links...)
	return s
}

func (s *Schema) put(f fieldDef) {
	for i, existing := range s.fields {
		if existing.name == f.name {
			s.fields[i] = f
			return
		}
	}
	s.fields = append(s.fields, f)
}

func (s *Schema) declares(name string) bool {
	for _, f := range s.fields {
		if f.name == name {
			return true
		}
	}
	return false
}
