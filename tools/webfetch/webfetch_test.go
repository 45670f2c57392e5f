package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Go Concurrency Patterns</title></head>
<body><article>
<h1>Go Concurrency Patterns</h1>
<p>Goroutines are lightweight threads managed by the Go runtime. They make it
practical to structure programs as independently executing pieces.</p>
<p>Channels connect goroutines and carry values between them, which keeps
shared state to a minimum.</p>
</article></body></html>`

func TestExecExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 0)
	res, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d", res.Status)
	}
	if res.Title != "Go Concurrency Patterns" {
		t.Fatalf("title = %q", res.Title)
	}
	if !strings.Contains(res.Text, "Goroutines are lightweight") {
		t.Fatalf("text missing content: %q", res.Text)
	}
}

func TestExecTruncatesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 40)
	res, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Text) > 40 {
		t.Fatalf("text not truncated: %d chars", len(res.Text))
	}
}

func TestExecRejectsEmptyURL(t *testing.T) {
	f := NewFetcher(time.Second, 100)
	if _, err := f.Exec(context.Background(), "  "); err == nil {
		t.Fatalf("empty url must fail")
	}
}
