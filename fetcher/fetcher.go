// Package fetcher downloads requests over HTTP. The Downloader interface
// decouples the engine from the transport, so tests and callers can
// substitute their own implementation.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/go-octopus/octopus/site"
	"github.com/go-octopus/octopus/types"
)

// DefaultUserAgent is sent when neither the site nor the request sets one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Downloader fetches the response for a request under a site policy.
type Downloader interface {
	Download(ctx context.Context, r *types.Request, s *site.Site) (*types.Response, error)
}

// HTTP is the net/http Downloader. Clients are cached per (proxy, timeout)
// pair so sites sharing a policy share connections and cookies.
type HTTP struct {
	userAgent string
	logger    *slog.Logger
	jar       http.CookieJar

	mu      sync.Mutex
	clients map[clientKey]*http.Client
}

type clientKey struct {
	proxy   string
	timeout time.Duration
}

// Option configures the HTTP downloader.
type Option func(*HTTP)

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *HTTP) { h.userAgent = ua }
}

// WithLogger sets the logger used for download diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP creates an HTTP downloader.
func NewHTTP(opts ...Option) *HTTP {
	jar, _ := cookiejar.New(nil)
	h := &HTTP{
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
		jar:       jar,
		clients:   make(map[clientKey]*http.Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "fetcher")
	return h
}

// Download performs the request and returns the decoded response. Header
// precedence is defaults, then site headers, then request headers. Request
// queries are merged into the URL query. Transport failures return a
// DownloadError; non-200 responses are returned intact for the caller to
// judge.
func (h *HTTP) Download(ctx context.Context, r *types.Request, s *site.Site) (*types.Response, error) {
	if s == nil {
		s = site.New(r.Host())
	}

	client, err := h.client(s)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Err: err}
	}

	rawURL, err := mergeQueries(r.URL, r.Queries)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Err: err}
	}

	var body io.Reader
	if len(r.Data) > 0 {
		body = bytes.NewReader(r.Data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, rawURL, body)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Err: err}
	}

	httpReq.Header.Set("User-Agent", h.userAgent)
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range s.Headers() {
		httpReq.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Err: err}
	}
	defer httpResp.Body.Close()

	reader, err := decompress(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Status: httpResp.StatusCode, Err: err}
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.DownloadError{URL: r.URL, Status: httpResp.StatusCode, Err: err}
	}

	resp := &types.Response{
		Request:  r,
		Status:   httpResp.StatusCode,
		Content:  content,
		Headers:  flattenHeaders(httpResp.Header),
		Encoding: responseEncoding(httpResp.Header, s),
	}

	h.logger.Debug("download complete",
		"url", r.URL,
		"status", resp.Status,
		"size", len(content),
		"duration", time.Since(start),
	)
	return resp, nil
}

// Close shuts idle connections on every cached client.
func (h *HTTP) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.CloseIdleConnections()
	}
	return nil
}

// client returns the cached client for the site's proxy and timeout,
// building one on first use.
func (h *HTTP) client(s *site.Site) (*http.Client, error) {
	key := clientKey{proxy: s.Proxy(), timeout: s.Timeout()}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[key]; ok {
		return c, nil
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decompression handled here, including brotli
	}
	if p := key.proxy; p != "" {
		u, err := neturl.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", p, err)
		}
		transport.Proxy = http.ProxyURL(u)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	c := &http.Client{
		Transport: transport,
		Jar:       h.jar,
		Timeout:   key.timeout,
	}
	h.clients[key] = c
	return c, nil
}

// mergeQueries appends explicit request queries to the URL query string.
func mergeQueries(rawURL string, queries map[string][]string) (string, error) {
	if len(queries) == 0 {
		return rawURL, nil
	}
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range queries {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decompress wraps the body reader with the decoder matching the
// Content-Encoding header. Handles gzip, deflate and brotli.
func decompress(encoding string, r io.Reader) (io.Reader, error) {
	switch encoding {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "br":
		return brotli.NewReader(r), nil
	default:
		return r, nil
	}
}

// flattenHeaders lowers header names and joins multi-valued headers with
// ", ", matching the Response header contract.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}

// responseEncoding resolves the response character encoding: the charset
// declared by the server, else the site fallback, else utf-8.
func responseEncoding(h http.Header, s *site.Site) string {
	if _, params, err := mime.ParseMediaType(h.Get("Content-Type")); err == nil {
		if cs := params["charset"]; cs != "" {
			return cs
		}
	}
	if enc := s.Encoding(); enc != "" {
		return enc
	}
	return site.DefaultEncoding
}
