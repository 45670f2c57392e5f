package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sinadarvi/quest/tools/websearch/models"
)

func TestSearchParsesResponse(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"results": [
				{"title": "one", "url": "https://a", "content": "c1", "score": 0.9},
				{"title": "two", "url": "https://b", "content": "c2", "score": 0.5},
				{"title": "three", "url": "https://c", "content": "c3", "score": 0.1}
			],
			"images": ["https://img/1.png", {"url": "https://img/2.png", "description": "d"}]
		}`))
	}))
	defer srv.Close()

	s := Search{ApiKey: "key", BaseURL: srv.URL}
	resp, err := s.Search(context.Background(), models.Query{Text: "golang", Depth: "advanced", MaxResults: 2, Topic: "news", Days: 7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotAuth != "Bearer key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["search_depth"] != "advanced" || gotBody["topic"] != "news" {
		t.Fatalf("request body = %v", gotBody)
	}
	// MaxResults caps locally even when the provider over-delivers
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Title != "one" || resp.Results[0].Score != 0.9 {
		t.Fatalf("first result = %+v", resp.Results[0])
	}
	// images decode from both the string and object forms
	if len(resp.Images) != 2 || resp.Images[1] != "https://img/2.png" {
		t.Fatalf("images = %v", resp.Images)
	}
}

func TestSearchDepthDefaultsToBasic(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	s := Search{ApiKey: "key", BaseURL: srv.URL}
	if _, err := s.Search(context.Background(), models.Query{Text: "q", Depth: "bogus"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotBody["search_depth"] != "basic" {
		t.Fatalf("depth = %v, want basic", gotBody["search_depth"])
	}
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := Search{ApiKey: "key", BaseURL: srv.URL}
	if _, err := s.Search(context.Background(), models.Query{Text: "q"}); err == nil {
		t.Fatalf("expected error on 429")
	}
}
