// Package matcher provides composable predicates over responses. The engine
// evaluates matchers against every downloaded response to decide which
// processors run; matchers are pure functions and safe for concurrent use.
package matcher

import (
	neturl "net/url"
	"regexp"
	"strings"

	"github.com/go-octopus/octopus/types"
)

// Matcher reports whether a response should be handled by an associated
// processor.
type Matcher func(*types.Response) bool

// All matches every response.
var All Matcher = func(*types.Response) bool { return true }

// Host matches responses whose request URL host equals h. The comparison is
// case-insensitive and includes the port when the URL carries one.
func Host(h string) Matcher {
	return func(resp *types.Response) bool {
		u, err := neturl.Parse(resp.Request.URL)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, h)
	}
}

// URL matches responses whose request URL matches the given pattern. The
// pattern is compiled once; an invalid pattern panics at construction.
func URL(pattern string) Matcher {
	re := regexp.MustCompile(pattern)
	return func(resp *types.Response) bool {
		return re.MatchString(resp.Request.URL)
	}
}

// Header matches responses carrying the named header with a value matching
// the given pattern. Header names are case-insensitive; a missing header
// never matches.
func Header(name, pattern string) Matcher {
	re := regexp.MustCompile(pattern)
	key := strings.ToLower(name)
	return func(resp *types.Response) bool {
		v, ok := resp.Headers[key]
		return ok && re.MatchString(v)
	}
}

// ContentType matches responses whose Content-Type header matches the given
// pattern.
func ContentType(pattern string) Matcher {
	return Header("Content-Type", pattern)
}

// And matches when every given matcher matches. With no arguments it behaves
// like All.
func And(matchers ...Matcher) Matcher {
	return func(resp *types.Response) bool {
		for _, m := range matchers {
			if !m(resp) {
				return false
			}
		}
		return true
	}
}

// Or matches when at least one of the given matchers matches.
func Or(matchers ...Matcher) Matcher {
	return func(resp *types.Response) bool {
		for _, m := range matchers {
			if m(resp) {
				return true
			}
		}
		return false
	}
}

// Not inverts a matcher.
func Not(m Matcher) Matcher {
	return func(resp *types.Response) bool {
		return !m(resp)
	}
}

// Common content-type matchers.
var (
	JSON        = ContentType(`application/json`)
	HTML        = ContentType(`text/html`)
	Image       = ContentType(`image/.*`)
	Video       = ContentType(`video/.*`)
	Audio       = ContentType(`audio/.*`)
	PDF         = ContentType(`application/pdf`)
	Word        = ContentType(`application/(msword|vnd\.openxmlformats-officedocument\.wordprocessingml\.document)`)
	Excel       = ContentType(`application/(vnd\.ms-excel|vnd\.openxmlformats-officedocument\.spreadsheetml\.sheet)`)
	OctetStream = ContentType(`application/octet-stream`)

	// Media matches any image, video or audio response.
	Media = Or(Image, Video, Audio)
)
