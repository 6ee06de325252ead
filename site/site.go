// Package site holds per-host crawl politeness configuration: rate
// limiter, header overlay, proxy, character encoding and timeout.
package site

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-octopus/octopus/limiter"
)

const (
	// DefaultEncoding is assumed when neither the server nor the site
	// declares one.
	DefaultEncoding = "utf-8"

	// DefaultTimeout bounds a single download.
	DefaultTimeout = 30 * time.Second
)

// Site is an immutable configuration bundle keyed by a host pattern.
// The pattern is either an exact hostname or a glob where `*` matches
// any run of characters, e.g. "*.example.com".
type Site struct {
	host     string
	limiter  *limiter.Limiter
	headers  map[string]string
	proxy    string
	encoding string
	timeout  time.Duration
}

// Option configures a Site at construction.
type Option func(*Site)

// WithLimiter attaches a token-bucket limiter gating downloads to hosts
// matched by this site.
func WithLimiter(l *limiter.Limiter) Option {
	return func(s *Site) { s.limiter = l }
}

// WithHeaders sets headers sent to hosts matched by this site. Request
// headers win over them.
func WithHeaders(h map[string]string) Option {
	return func(s *Site) {
		s.headers = make(map[string]string, len(h))
		for k, v := range h {
			s.headers[k] = v
		}
	}
}

// WithProxy routes downloads through the given proxy URL, for both http
// and https.
func WithProxy(proxy string) Option {
	return func(s *Site) { s.proxy = proxy }
}

// WithEncoding sets the fallback character encoding used when the server
// does not declare one.
func WithEncoding(enc string) Option {
	return func(s *Site) { s.encoding = enc }
}

// WithTimeout bounds each download to hosts matched by this site.
func WithTimeout(d time.Duration) Option {
	return func(s *Site) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Site for the given host pattern.
func New(host string, opts ...Option) *Site {
	s := &Site{
		host:     strings.ToLower(host),
		encoding: DefaultEncoding,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Host returns the host pattern this site was registered under.
func (s *Site) Host() string { return s.host }

// Limiter returns the attached limiter, or nil.
func (s *Site) Limiter() *limiter.Limiter { return s.limiter }

// Headers returns the site header overlay. The returned map must not be
// modified.
func (s *Site) Headers() map[string]string { return s.headers }

// Proxy returns the proxy URL, or "".
func (s *Site) Proxy() string { return s.proxy }

// Encoding returns the fallback response encoding.
func (s *Site) Encoding() string { return s.encoding }

// Timeout returns the per-download time bound.
func (s *Site) Timeout() time.Duration { return s.timeout }

// Registry resolves a hostname to its Site. Exact entries are consulted
// first, then glob patterns in registration order.
type Registry struct {
	exact map[string]*Site
	globs []globEntry
}

type globEntry struct {
	re   *regexp.Regexp
	site *Site
}

// NewRegistry builds a Registry from the given sites. Glob patterns are
// compiled once here.
func NewRegistry(sites ...*Site) *Registry {
	reg := &Registry{exact: make(map[string]*Site, len(sites))}
	for _, s := range sites {
		if strings.Contains(s.host, "*") {
			reg.globs = append(reg.globs, globEntry{re: compileGlob(s.host), site: s})
		} else {
			reg.exact[s.host] = s
		}
	}
	return reg
}

// Lookup returns the site configured for host. When nothing matches, a
// fresh default Site for that host is returned, so callers always get
// usable timeout and encoding values.
func (reg *Registry) Lookup(host string) *Site {
	host = strings.ToLower(host)
	if s, ok := reg.exact[host]; ok {
		return s
	}
	for _, g := range reg.globs {
		if g.re.MatchString(host) {
			return g.site
		}
	}
	return New(host)
}

func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
