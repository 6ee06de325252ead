package types

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Request represents one unit of crawl work. Its identity is a canonical
// fingerprint over method, URL and body, so reshuffled query parameters
// map to the same request.
type Request struct {
	// ID is the MD5 fingerprint, assigned once before the first store insert.
	ID string `json:"id"`

	// URL is the target URL. Relative URLs are resolved against the parent
	// before the request is enqueued.
	URL string `json:"url"`

	// Method is the HTTP method; only GET and POST are supported.
	Method string `json:"method"`

	// Queries are extra query parameters merged into the URL at fetch time.
	Queries map[string][]string `json:"queries,omitempty"`

	// Data is the raw request body for POST requests.
	Data []byte `json:"data,omitempty"`

	// Headers are request-scoped HTTP headers; they win over site headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Priority controls scheduling order (higher = dispatched earlier).
	Priority int `json:"priority"`

	// Repeatable disables the already-exists dedup check when true.
	Repeatable bool `json:"repeatable"`

	// Attrs is an arbitrary user payload carried on the request and copied
	// into derived requests; accessor selectors can read it.
	Attrs map[string]any `json:"attrs,omitempty"`

	// Inherit overlays the parent's headers and attrs under this request's.
	Inherit bool `json:"inherit"`

	// Parent is the fingerprint of the request this one was discovered on.
	Parent string `json:"parent,omitempty"`

	// Depth is the crawl depth; seeds are depth 1.
	Depth int `json:"depth"`

	// State is the lifecycle state, managed by the store.
	State State `json:"state"`

	// Msg carries the reason for the current state, e.g. a failure message.
	Msg string `json:"msg,omitempty"`
}

// NewRequest creates a GET request with defaults applied.
func NewRequest(rawURL string) (*Request, error) {
	r := &Request{
		URL:        rawURL,
		Method:     http.MethodGet,
		Repeatable: true,
		State:      StateNew,
		Depth:      1,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewPostRequest creates a POST request carrying data as its raw body.
func NewPostRequest(rawURL string, data []byte) (*Request, error) {
	r := &Request{
		URL:        rawURL,
		Method:     http.MethodPost,
		Data:       data,
		Repeatable: true,
		State:      StateNew,
		Depth:      1,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the fields a store or downloader depends on. It is run
// at construction and again when a request enters the engine.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &InvalidRequestError{URL: r.URL, Reason: "empty URL"}
	}
	if _, err := url.Parse(r.URL); err != nil {
		return &InvalidRequestError{URL: r.URL, Reason: err.Error()}
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		return &InvalidRequestError{URL: r.URL, Reason: "unsupported method " + r.Method}
	}
	return nil
}

// ComputeID assigns the canonical fingerprint if not already set and
// returns it.
func (r *Request) ComputeID() string {
	if r.ID == "" {
		r.ID = Fingerprint(r.Method, r.URL, r.Queries, r.Data)
	}
	return r.ID
}

// Host returns the lower-cased hostname of the request URL, or "" if the
// URL does not parse.
func (r *Request) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Header returns the named request header, matching case-insensitively.
func (r *Request) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.Queries != nil {
		clone.Queries = make(map[string][]string, len(r.Queries))
		for k, v := range r.Queries {
			clone.Queries[k] = append([]string(nil), v...)
		}
	}
	if r.Headers != nil {
		clone.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			clone.Headers[k] = v
		}
	}
	if r.Attrs != nil {
		clone.Attrs = make(map[string]any, len(r.Attrs))
		for k, v := range r.Attrs {
			clone.Attrs[k] = v
		}
	}
	clone.Data = append([]byte(nil), r.Data...)
	return &clone
}

// Fingerprint computes the MD5 identity over METHOD + canonical URL +
// ("&" + body when present). The canonical URL carries the merged query:
// explicit queries are appended to the URL's own values and sorted per
// key, keys are sorted, and everything is form-encoded. Headers and proxy
// never participate, so they stay free to vary per site.
func Fingerprint(method, rawURL string, queries map[string][]string, data []byte) string {
	canonical := method + canonicalURL(rawURL, queries)
	if len(data) > 0 {
		canonical += "&" + string(data)
	}
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// canonicalURL normalizes rawURL's query for fingerprinting. Values of
// keys that only appear in the URL keep their original order; merged keys
// are sorted. Fragments are dropped, they cannot influence the response.
func canonicalURL(rawURL string, queries map[string][]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for key, vals := range queries {
		merged := append(append([]string(nil), q[key]...), vals...)
		sort.Strings(merged)
		q[key] = merged
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}
