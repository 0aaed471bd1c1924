package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractHTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<div>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<p>Second    paragraph.</p>
</div>
<footer>Footer stuff</footer>
</body>
</html>`

	title, content := extractHTML(page)

	if title != "Test Page" {
		t.Errorf("title = %q, want 'Test Page'", title)
	}
	for _, want := range []string{"Hello World", "bold text", "Second paragraph."} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q: %q", want, content)
		}
	}
	for _, unwanted := range []string{"var x = 1", "Navigation stuff", "Footer stuff", "color: red"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("content should not contain %q", unwanted)
		}
	}
	if strings.Contains(content, "\n\n\n") {
		t.Error("content should not contain consecutive blank lines")
	}
}

func TestExtractHTML_PrefersArticle(t *testing.T) {
	page := `<html><body><div>Sidebar junk</div><article><p>The story.</p></article></body></html>`

	_, content := extractHTML(page)
	if content != "The story." {
		t.Errorf("content = %q, want only the article text", content)
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "aide/") {
			t.Errorf("User-Agent = %q, want aide/...", ua)
		}
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("  just text \n"))
		case "/binary":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte{0xff, 0xfe, 0x00, 0x81})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := New(5 * time.Second)
	ctx := context.Background()

	page, err := f.Fetch(ctx, ts.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Title != "Test" || page.Content != "Hello from test server" {
		t.Errorf("page = %+v", page)
	}

	plain, err := f.Fetch(ctx, ts.URL+"/plain")
	if err != nil {
		t.Fatalf("Fetch plain: %v", err)
	}
	if plain.Content != "just text" {
		t.Errorf("plain content = %q", plain.Content)
	}

	if _, err := f.Fetch(ctx, ts.URL+"/binary"); err == nil {
		t.Error("binary body should be an error")
	}
	if _, err := f.Fetch(ctx, ts.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("404 err = %v", err)
	}
	if _, err := f.Fetch(ctx, ""); err == nil {
		t.Error("empty url should be an error")
	}
}

func TestExtractURLs(t *testing.T) {
	text := `see https://a.example/x?y=1 and <http://b.example/p> then https://a.example/x?y=1 and https://c.example and https://d.example`

	got := ExtractURLs(text, 3)
	want := []string{"https://a.example/x?y=1", "http://b.example/p", "https://c.example"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("ExtractURLs = %v, want %v", got, want)
	}
	if n := len(ExtractURLs(text, 0)); n != 4 {
		t.Errorf("unlimited extraction found %d, want 4", n)
	}
	if ExtractURLs("no links here", 3) != nil {
		t.Error("expected nil for text without links")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"안녕하세요", 2, "안녕"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
