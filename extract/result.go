package extract

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Result holds the values bound from one response, keyed by field name in
// schema declaration order. Embedded schemas bind to nested *Result values
// (or []*Result when their selector is multi-valued).
type Result struct {
	keys   []string
	values map[string]any
}

func newResult() *Result {
	return &Result{values: make(map[string]any)}
}

// Set stores a value, keeping first-set key order.
func (r *Result) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

// Get returns the value bound to name, or nil.
func (r *Result) Get(name string) any {
	return r.values[name]
}

// GetString returns the value bound to name rendered as a string, or "" when
// absent or nil.
func (r *Result) GetString(name string) string {
	v, ok := r.values[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Keys returns the field names in declaration order.
func (r *Result) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of bound fields.
func (r *Result) Len() int {
	return len(r.keys)
}

// ToMap converts the result into plain maps and slices, recursing into
// embedded results.
func (r *Result) ToMap() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		m[k] = toPlain(r.values[k])
	}
	return m
}

// Decode populates a user struct from the result's values. Field matching
// follows mapstructure rules, so names match case-insensitively and the
// "mapstructure" tag overrides them.
func (r *Result) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(r.ToMap())
}

func (r *Result) String() string {
	return fmt.Sprintf("%v", r.ToMap())
}

func toPlain(v any) any {
	switch x := v.(type) {
	case *Result:
		if x == nil {
			return nil
		}
		return x.ToMap()
	case []*Result:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, toPlain(e))
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, toPlain(e))
		}
		return out
	default:
		return v
	}
}
