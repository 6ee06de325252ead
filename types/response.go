package types

import (
	"strings"
	"sync"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Response is the outcome of downloading a request. Header names are
// stored lower-cased; multi-valued headers are joined with ", ".
type Response struct {
	// Request is the request this response answers.
	Request *Request

	// Status is the HTTP status code.
	Status int

	// Content is the raw, already-decompressed body.
	Content []byte

	// Headers maps lower-cased header names to their values.
	Headers map[string]string

	// Encoding is the character encoding used by Text: the server-declared
	// charset, else the site encoding, else utf-8.
	Encoding string

	textOnce sync.Once
	text     string
}

// Text decodes Content using Encoding. The decode runs once and is
// memoized; unknown encodings fall back to interpreting the bytes as
// UTF-8.
func (r *Response) Text() string {
	r.textOnce.Do(func() {
		r.text = decodeText(r.Content, r.Encoding)
	})
	return r.text
}

// Header returns the named response header; the lookup is
// case-insensitive because names are stored lower-cased.
func (r *Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ContentType returns the content-type header, without parameters.
func (r *Response) ContentType() string {
	ct := r.Header("content-type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// IsSuccess reports whether the response carries status 200.
func (r *Response) IsSuccess() bool {
	return r.Status == 200
}

func decodeText(content []byte, encoding string) string {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	if enc == "" || enc == "utf-8" || enc == "utf8" {
		return string(content)
	}
	e, _ := charset.Lookup(enc)
	if e == nil {
		return string(content)
	}
	decoded, _, err := transform.Bytes(e.NewDecoder(), content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}
