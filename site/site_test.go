package site

import (
	"testing"
	"time"

	"github.com/go-octopus/octopus/limiter"
)

func TestDefaults(t *testing.T) {
	s := New("example.com")
	if s.Encoding() != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", s.Encoding())
	}
	if s.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", s.Timeout())
	}
	if s.Limiter() != nil {
		t.Error("no limiter expected by default")
	}
}

func TestOptions(t *testing.T) {
	l := limiter.New(time.Second, 2)
	s := New("Example.COM",
		WithLimiter(l),
		WithHeaders(map[string]string{"Accept-Language": "en"}),
		WithProxy("http://127.0.0.1:8080"),
		WithEncoding("gbk"),
		WithTimeout(5*time.Second),
	)
	if s.Host() != "example.com" {
		t.Errorf("host not lower-cased: %q", s.Host())
	}
	if s.Limiter() != l {
		t.Error("limiter not attached")
	}
	if s.Headers()["Accept-Language"] != "en" {
		t.Error("headers not set")
	}
	if s.Proxy() != "http://127.0.0.1:8080" {
		t.Error("proxy not set")
	}
	if s.Encoding() != "gbk" || s.Timeout() != 5*time.Second {
		t.Error("encoding or timeout not set")
	}
}

func TestHeadersCopied(t *testing.T) {
	src := map[string]string{"A": "1"}
	s := New("h", WithHeaders(src))
	src["A"] = "2"
	if s.Headers()["A"] != "1" {
		t.Error("site headers alias the caller's map")
	}
}

func TestLookupExactBeforeGlob(t *testing.T) {
	exact := New("movie.example.com", WithEncoding("gbk"))
	glob := New("*.example.com", WithEncoding("latin-1"))
	reg := NewRegistry(glob, exact)

	if got := reg.Lookup("movie.example.com"); got != exact {
		t.Error("exact entry should win over glob")
	}
	if got := reg.Lookup("news.example.com"); got != glob {
		t.Error("glob entry should match sibling host")
	}
}

func TestLookupGlobAnchored(t *testing.T) {
	glob := New("*.example.com")
	reg := NewRegistry(glob)
	if got := reg.Lookup("example.com.evil.org"); got == glob {
		t.Error("glob matched past its anchor")
	}
}

func TestLookupMissReturnsDefault(t *testing.T) {
	reg := NewRegistry()
	s := reg.Lookup("unknown.host")
	if s == nil {
		t.Fatal("Lookup returned nil")
	}
	if s.Host() != "unknown.host" || s.Timeout() != DefaultTimeout {
		t.Errorf("default site = %q timeout %v", s.Host(), s.Timeout())
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	s := New("Movie.Example.com")
	reg := NewRegistry(s)
	if got := reg.Lookup("movie.EXAMPLE.com"); got != s {
		t.Error("host matching should ignore case")
	}
}
