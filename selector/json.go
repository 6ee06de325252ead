package selector

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/go-octopus/octopus/types"
)

// JSON selects values from a JSON body using a gjson path expression, for
// example "items.#.name" for every name in an array. String matches yield
// their value verbatim; everything else yields its JSON encoding. Array
// matches are flattened into one value per element.
func JSON(path string, opts ...Option) Selector {
	o := newOptions(opts)
	p := &pipeline{kind: fmt.Sprintf("json %q", path), opts: o, content: true}
	p.raw = func(content string, _ *types.Response) ([]string, error) {
		if !gjson.Valid(content) {
			return nil, errors.New("invalid json document")
		}
		res := gjson.Get(content, path)
		if !res.Exists() {
			return nil, nil
		}
		if res.IsArray() {
			arr := res.Array()
			out := make([]string, 0, len(arr))
			for _, el := range arr {
				out = append(out, jsonValue(el))
			}
			return out, nil
		}
		return []string{jsonValue(res)}, nil
	}
	return p
}

func jsonValue(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
