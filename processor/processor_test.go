package processor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-octopus/octopus/extract"
	"github.com/go-octopus/octopus/selector"
	"github.com/go-octopus/octopus/types"
)

func newTestResponse(t *testing.T, rawURL string, content []byte) *types.Response {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("NewRequest(%q) failed: %v", rawURL, err)
	}
	return &types.Response{
		Request: req,
		Status:  200,
		Content: content,
		Headers: map[string]string{},
	}
}

// --- Extract Processor Tests ---

func TestExtractProcessor(t *testing.T) {
	html := `<html><body>
	  <h1>Title</h1>
	  <a class="next" href="/page/2">next</a>
	</body></html>`
	resp := newTestResponse(t, "http://example.com/page/1", []byte(html))

	schema := extract.NewSchema().
		Field("heading", selector.CSS("h1", selector.Text())).
		Link(extract.NewLink(selector.CSS("a.next", selector.HTMLAttr("href"))))

	var collected []*extract.Result
	proc := Extract(schema, func(res *extract.Result) error {
		collected = append(collected, res)
		return nil
	})

	links, err := proc(resp)
	if err != nil {
		t.Fatalf("processor failed: %v", err)
	}
	if len(links) != 1 || links[0].URL != "/page/2" {
		t.Errorf("links = %v, want one /page/2", links)
	}
	if len(collected) != 1 {
		t.Fatalf("collector ran %d times, want 1", len(collected))
	}
	if got := collected[0].Get("heading"); got != "Title" {
		t.Errorf("heading = %v, want Title", got)
	}
}

func TestExtractProcessorCollectorError(t *testing.T) {
	resp := newTestResponse(t, "http://example.com/", []byte("<html></html>"))

	schema := extract.NewSchema().Field("u", selector.URL())
	proc := Extract(schema, func(*extract.Result) error {
		return errors.New("sink unavailable")
	})

	_, err := proc(resp)
	if err == nil {
		t.Fatal("expected collector error to propagate")
	}
	if !errors.Is(err, types.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", err)
	}
}

// --- SaveFile Processor Tests ---

func TestSaveFileFromURL(t *testing.T) {
	dir := t.TempDir()
	resp := newTestResponse(t, "http://example.com/files/photo.jpg", []byte("jpegdata"))

	links, err := SaveFile(dir)(resp)
	if err != nil {
		t.Fatalf("processor failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links, got %d", len(links))
	}

	data, err := os.ReadFile(filepath.Join(dir, "photo.jpg"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "jpegdata" {
		t.Errorf("content = %q, want jpegdata", data)
	}
}

func TestSaveFileFromDisposition(t *testing.T) {
	dir := t.TempDir()
	resp := newTestResponse(t, "http://example.com/download", []byte("pdfdata"))
	resp.Headers["content-disposition"] = `attachment; filename="report.pdf"`

	if _, err := SaveFile(dir)(resp); err != nil {
		t.Fatalf("processor failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.pdf")); err != nil {
		t.Errorf("expected report.pdf from disposition header: %v", err)
	}
}

func TestSaveFileFromAttrs(t *testing.T) {
	dir := t.TempDir()
	resp := newTestResponse(t, "http://example.com/img/1", []byte("data"))
	resp.Request.Attrs = map[string]any{
		"album": "holiday",
		"name":  "beach.png",
	}

	proc := SaveFile(dir, WithSubDirAttr("album"), WithFilenameAttr("name"))
	if _, err := proc(resp); err != nil {
		t.Fatalf("processor failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "holiday", "beach.png")); err != nil {
		t.Errorf("expected nested attr-named file: %v", err)
	}
}

func TestSaveFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := newTestResponse(t, "http://example.com/photo.jpg", []byte("new"))
	if _, err := SaveFile(dir)(resp); err != nil {
		t.Fatalf("processor failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("content = %q, want replaced file", data)
	}
}

func TestSaveFileNoFilename(t *testing.T) {
	dir := t.TempDir()
	resp := newTestResponse(t, "http://example.com/", []byte("data"))

	_, err := SaveFile(dir)(resp)
	if err == nil {
		t.Fatal("expected error when no filename can be determined")
	}
	if !errors.Is(err, types.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", err)
	}
}

func TestSaveFileAttrNameIsSanitized(t *testing.T) {
	dir := t.TempDir()
	resp := newTestResponse(t, "http://example.com/x", []byte("data"))
	resp.Request.Attrs = map[string]any{"name": "../../escape.txt"}

	if _, err := SaveFile(dir, WithFilenameAttr("name"))(resp); err != nil {
		t.Fatalf("processor failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err != nil {
		t.Errorf("expected sanitized filename inside base dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "..", "escape.txt")); err == nil {
		t.Error("file escaped the base directory")
	}
}
