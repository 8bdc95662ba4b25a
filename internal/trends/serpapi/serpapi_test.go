package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blogify-ai/blogify/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.SerpAPIConfig{APIKey: "test-key", Region: "us"})
	c.Endpoint = srv.URL
	return c
}

func TestTrendingNowCurrentFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google_trends_trending_now" {
			t.Errorf("engine = %q", q.Get("engine"))
		}
		if q.Get("geo") != "US" {
			t.Errorf("geo = %q", q.Get("geo"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"trending_searches": [
				{
					"query": "solar eclipse",
					"search_volume": 500000,
					"trend_breakdown": ["eclipse glasses", "eclipse time"],
					"categories": [{"name": "Science"}],
					"articles": [{"title": "Eclipse today", "link": "https://example.com/a"}]
				},
				{"query": "playoff schedule", "search_volume": 200000}
			]
		}`))
	})

	topics, err := c.TrendingNow(context.Background())
	if err != nil {
		t.Fatalf("TrendingNow: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
	first := topics[0]
	if first.Keyword != "solar eclipse" || first.Rank != 1 || first.SearchVolume != 500000 {
		t.Fatalf("first topic = %+v", first)
	}
	if len(first.RelatedKeywords) != 2 || first.RelatedKeywords[0] != "eclipse glasses" {
		t.Fatalf("related = %v", first.RelatedKeywords)
	}
	if len(first.ArticleURLs) != 1 || first.ArticleURLs[0] != "https://example.com/a" {
		t.Fatalf("article urls = %v", first.ArticleURLs)
	}
	if topics[1].Rank != 2 {
		t.Fatalf("second rank = %d", topics[1].Rank)
	}
}

func TestTrendingNowCategoryParamAndRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("geo") != "GB" {
			t.Errorf("geo = %q", q.Get("geo"))
		}
		if q.Get("category") != "technology" {
			t.Errorf("category = %q", q.Get("category"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"trending_searches": [{"query": "new phone launch", "categories": [{"name": "Technology"}]}]}`))
	}))
	defer srv.Close()

	c := New(config.SerpAPIConfig{APIKey: "test-key", Region: "gb", Category: "technology"})
	c.Endpoint = srv.URL

	topics, err := c.TrendingNow(context.Background())
	if err != nil {
		t.Fatalf("TrendingNow: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(topics))
	}
	if topics[0].Region != "GB" {
		t.Fatalf("region = %q, want GB", topics[0].Region)
	}
	if len(topics[0].Categories) != 1 || topics[0].Categories[0] != "Technology" {
		t.Fatalf("categories = %v", topics[0].Categories)
	}
}

func TestTrendingNowLegacyFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"daily_searches": [
				{
					"searches": [
						{
							"title": {"query": "world cup final"},
							"articles": [
								{"title": "Final preview", "source": "Sports Daily", "link": "https://example.com/b"}
							]
						}
					]
				}
			]
		}`))
	})

	topics, err := c.TrendingNow(context.Background())
	if err != nil {
		t.Fatalf("TrendingNow: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("got %d topics, want 1", len(topics))
	}
	got := topics[0]
	if got.Keyword != "world cup final" {
		t.Fatalf("keyword = %q", got.Keyword)
	}
	if len(got.RelatedKeywords) != 1 || got.RelatedKeywords[0] != "Final preview" {
		t.Fatalf("related = %v", got.RelatedKeywords)
	}
	if len(got.ArticleURLs) != 1 || got.ArticleURLs[0] != "https://example.com/b" {
		t.Fatalf("article urls = %v", got.ArticleURLs)
	}
}

func TestTrendingNowAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": "Invalid API key"}`))
	})
	if _, err := c.TrendingNow(context.Background()); err == nil {
		t.Fatal("expected error from API error payload")
	}
}

func TestTrendingNowMissingKey(t *testing.T) {
	c := New(config.SerpAPIConfig{})
	if _, err := c.TrendingNow(context.Background()); err == nil {
		t.Fatal("expected error without api key")
	}
}
