package selector

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-octopus/octopus/convert"
	"github.com/go-octopus/octopus/types"
)

const itemsHTML = `
<html><body>
  <h1> Catalog </h1>
  <div class="item"><a href="/movie/101/">First</a><span class="score">8.1</span></div>
  <div class="item"><a href="/movie/102/">Second</a><span class="score">7.4</span></div>
  <p class="empty">   </p>
</body></html>`

func newTestResponse(t *testing.T, rawURL string) *types.Response {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("NewRequest(%q) failed: %v", rawURL, err)
	}
	return &types.Response{Request: req, Status: 200, Headers: map[string]string{}}
}

// --- CSS Selector Tests ---

func TestCSSOuterHTMLDefault(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("span.score").Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("got %T, want string", v)
	}
	if !strings.HasPrefix(s, "<span") || !strings.Contains(s, "8.1") {
		t.Errorf("expected outer HTML of first match, got %q", s)
	}
}

func TestCSSText(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("h1", Text()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "Catalog" {
		t.Errorf("got %v, want %q (trimmed text)", v, "Catalog")
	}
}

func TestCSSAttr(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("div.item a", HTMLAttr("href"), Multi()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	hrefs, ok := v.([]string)
	if !ok {
		t.Fatalf("got %T, want []string", v)
	}
	want := []string{"/movie/101/", "/movie/102/"}
	if len(hrefs) != len(want) {
		t.Fatalf("got %v, want %v", hrefs, want)
	}
	for i := range want {
		if hrefs[i] != want[i] {
			t.Errorf("hrefs[%d] = %q, want %q", i, hrefs[i], want[i])
		}
	}
}

func TestCSSNoMatchSingle(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("div.absent", Text()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != nil {
		t.Errorf("got %v, want nil for zero matches in single mode", v)
	}
}

// --- XPath Selector Tests ---

func TestXPathText(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := XPath("//span[@class='score']/text()", Multi()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	scores, ok := v.([]string)
	if !ok || len(scores) != 2 {
		t.Fatalf("got %v (%T), want two scores", v, v)
	}
	if scores[0] != "8.1" || scores[1] != "7.4" {
		t.Errorf("got %v, want [8.1 7.4]", scores)
	}
}

func TestXPathAttribute(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := XPath("//div[@class='item']/a/@href").Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "/movie/101/" {
		t.Errorf("got %v, want /movie/101/", v)
	}
}

func TestXPathElementSerialization(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := XPath("//div[@class='item']").Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("got %T, want string", v)
	}
	if !strings.HasPrefix(s, "<div") || !strings.Contains(s, "/movie/101/") {
		t.Errorf("expected serialized element, got %q", s)
	}
}

func TestXPathInvalidExpressionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid xpath expression")
		}
	}()
	XPath("//a[")
}

// --- Regex Selector Tests ---

func TestRegexWholeMatch(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := Regex(`\d+\.\d+`, Multi()).Select("scores: 8.1 and 7.4", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	got, ok := v.([]string)
	if !ok || len(got) != 2 || got[0] != "8.1" || got[1] != "7.4" {
		t.Errorf("got %v, want [8.1 7.4]", v)
	}
}

func TestRegexGroup(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := Regex(`/movie/(\d+)/`, Group(1)).Select("/movie/42/", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "42" {
		t.Errorf("got %v, want 42", v)
	}
}

func TestRegexGroupsConcatenate(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := Regex(`(\d+)-(\d+)`, Groups(1, 2)).Select("id 12-34 end", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "1234" {
		t.Errorf("got %v, want concatenated groups 1234", v)
	}
}

func TestRegexGroupOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range group")
		}
	}()
	Regex(`(\d+)`, Group(2))
}

// --- JSON Selector Tests ---

const itemsJSON = `{
  "title": "catalog",
  "count": 2,
  "items": [
    {"name": "first", "price": 9.5},
    {"name": "second", "price": 12}
  ]
}`

func TestJSONStringValue(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/api")

	v, err := JSON("title").Select(itemsJSON, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "catalog" {
		t.Errorf("got %v, want catalog", v)
	}
}

func TestJSONNonStringEncoded(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/api")

	v, err := JSON("count").Select(itemsJSON, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "2" {
		t.Errorf("got %v, want JSON-encoded 2", v)
	}

	v, err = JSON("items.0").Select(itemsJSON, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	s, ok := v.(string)
	if !ok || !strings.Contains(s, `"name"`) {
		t.Errorf("expected raw JSON object, got %v", v)
	}
}

func TestJSONArrayFlattened(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/api")

	v, err := JSON("items.#.name", Multi()).Select(itemsJSON, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	names, ok := v.([]string)
	if !ok || len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("got %v, want [first second]", v)
	}
}

func TestJSONMissingPath(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/api")

	v, err := JSON("absent").Select(itemsJSON, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != nil {
		t.Errorf("got %v, want nil for missing path", v)
	}
}

func TestJSONInvalidDocument(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/api")

	_, err := JSON("title").Select("{not json", resp)
	if err == nil {
		t.Fatal("expected error for invalid json")
	}
	if !errors.Is(err, types.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", err)
	}
}

// --- Pipeline Tests ---

func TestPipelineTrimAndFilter(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("p.empty", Text()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != nil {
		t.Errorf("got %v, want nil after trim and empty filter", v)
	}

	v, err = CSS("p.empty", Text(), NoTrim(), KeepEmpty()).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) != "" {
		t.Errorf("got %q, want untouched whitespace", v)
	}
}

func TestPipelineFormat(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := Regex(`\d+`, Format("page-%s")).Select("go to 7", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "page-7" {
		t.Errorf("got %v, want page-7", v)
	}
}

func TestPipelineConvert(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("span.score", Text(), Convert(convert.Float())).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != 8.1 {
		t.Errorf("got %v, want 8.1", v)
	}
}

func TestPipelineConvertMulti(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("span.score", Text(), Multi(), Convert(convert.Float())).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	vals, ok := v.([]any)
	if !ok || len(vals) != 2 {
		t.Fatalf("got %v (%T), want two converted values", v, v)
	}
	if vals[0] != 8.1 || vals[1] != 7.4 {
		t.Errorf("got %v, want [8.1 7.4]", vals)
	}
}

func TestPipelineConvertDefaultOnEmpty(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := CSS("div.absent", Text(), Convert(convert.Int(42))).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != 42 {
		t.Errorf("got %v, want converter default 42", v)
	}
}

func TestPipelineConvertError(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	_, err := CSS("h1", Text(), Convert(convert.Int())).Select(itemsHTML, resp)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if !errors.Is(err, types.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", err)
	}
}

// --- Chaining Tests ---

func TestFromChain(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	v, err := Regex(`/movie/(\d+)/`, Group(1), From(XPath("//a/@href"))).Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "101" {
		t.Errorf("got %v, want 101", v)
	}
}

func TestFromChainMulti(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	sel := Regex(`/movie/(\d+)/`, Group(1), Multi(),
		From(XPath("//a/@href", Multi())),
	)
	v, err := sel.Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	ids, ok := v.([]string)
	if !ok || len(ids) != 2 || ids[0] != "101" || ids[1] != "102" {
		t.Errorf("got %v, want [101 102]", v)
	}
}

func TestFromChainWithConverter(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")

	sel := Regex(`/movie/(\d+)/`, Group(1),
		From(XPath("//a/@href")),
		Convert(convert.Int()),
	)
	v, err := sel.Select(itemsHTML, resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != 101 {
		t.Errorf("got %v, want 101", v)
	}
}

// --- Accessor Selector Tests ---

func TestAttrSelector(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")
	resp.Request.Attrs = map[string]any{
		"category": "horror",
		"tags":     []any{"a", "b"},
	}

	v, err := Attr("category").Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "horror" {
		t.Errorf("got %v, want horror", v)
	}

	v, err = Attr("tags", Multi()).Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	tags, ok := v.([]string)
	if !ok || len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("got %v, want [a b]", v)
	}

	v, err = Attr("absent").Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != nil {
		t.Errorf("got %v, want nil for missing attribute", v)
	}
}

func TestQuerySelectorExplicit(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/list")
	resp.Request.Queries = map[string][]string{"page": {"3"}}

	v, err := Query("page").Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "3" {
		t.Errorf("got %v, want 3", v)
	}
}

func TestQuerySelectorURLFallback(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/list?page=9&tag=x")

	v, err := Query("page").Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "9" {
		t.Errorf("got %v, want 9 from URL query", v)
	}
}

func TestHeaderSelector(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/")
	resp.Request.Headers = map[string]string{"X-Token": "abc"}

	v, err := Header("X-Token").Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "abc" {
		t.Errorf("got %v, want abc", v)
	}
}

func TestURLSelector(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/a?x=1")

	v, err := URL().Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "http://example.com/a?x=1" {
		t.Errorf("got %v, want request URL", v)
	}

	v, err = URL(Encoded()).Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !strings.Contains(v.(string), "%3A%2F%2F") {
		t.Errorf("expected percent-encoded URL, got %v", v)
	}

	v, err = URL(Decoded()).Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != "http://example.com/a?x=1" {
		t.Errorf("got %v, want decoded URL", v)
	}
}

func TestIDSelector(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/a")
	resp.Request.ComputeID()

	v, err := ID().Select("", resp)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if v != resp.Request.ID {
		t.Errorf("got %v, want request id %s", v, resp.Request.ID)
	}
}

// --- Benchmarks ---

func BenchmarkCSSSelect(b *testing.B) {
	resp := &types.Response{Status: 200}
	sel := CSS("div.item a", HTMLAttr("href"), Multi())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sel.Select(itemsHTML, resp); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRegexSelect(b *testing.B) {
	resp := &types.Response{Status: 200}
	sel := Regex(`/movie/(\d+)/`, Group(1), Multi())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sel.Select(itemsHTML, resp); err != nil {
			b.Fatal(err)
		}
	}
}
