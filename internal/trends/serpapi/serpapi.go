// Package serpapi implements the trends client against SerpAPI's
// Google Trends "trending now" engine.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/trends"
)

const defaultEndpoint = "https://serpapi.com/search.json"

type Client struct {
	apiKey     string
	region     string
	category   string
	httpClient *http.Client

	// Endpoint is overridable for tests.
	Endpoint string
}

// New builds a SerpAPI client from config.
func New(cfg config.SerpAPIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		region:     strings.ToUpper(cfg.Region),
		category:   cfg.Category,
		httpClient: &http.Client{Timeout: timeout},
		Endpoint:   defaultEndpoint,
	}
}

// Response shapes SerpAPI has served over time. The current format lists
// trending_searches with query/search_volume; the legacy one nests them
// under daily_searches with a title object.
type story struct {
	Query          string   `json:"query"`
	SearchVolume   int      `json:"search_volume"`
	TrendBreakdown []string `json:"trend_breakdown"`
	Categories     []struct {
		Name string `json:"name"`
	} `json:"categories"`
	RelatedQueries []struct {
		Query string `json:"query"`
	} `json:"related_queries"`
	Title *struct {
		Query string `json:"query"`
	} `json:"title"`
	Articles []struct {
		Title  string `json:"title"`
		Source string `json:"source"`
		Link   string `json:"link"`
	} `json:"articles"`
}

type response struct {
	TrendingSearches []story `json:"trending_searches"`
	DailySearches    []struct {
		Searches []story `json:"searches"`
	} `json:"daily_searches"`
	Error string `json:"error"`
}

// TrendingNow fetches the currently trending searches for the configured
// region.
func (c *Client) TrendingNow(ctx context.Context) ([]trends.Topic, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("serpapi api key not configured")
	}

	params := url.Values{}
	params.Add("engine", "google_trends_trending_now")
	params.Add("geo", c.region)
	params.Add("hl", "en")
	params.Add("hours", "24")
	if c.category != "" {
		params.Add("category", c.category)
	}
	params.Add("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trends: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi error: %s", resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", result.Error)
	}

	stories := result.TrendingSearches
	if len(stories) == 0 && len(result.DailySearches) > 0 {
		stories = result.DailySearches[0].Searches
	}

	var out []trends.Topic
	for i, st := range stories {
		t := parseStory(st, i+1)
		if t.Keyword == "" {
			continue
		}
		t.Region = c.region
		out = append(out, t)
	}
	return out, nil
}

func parseStory(st story, rank int) trends.Topic {
	t := trends.Topic{Rank: rank}

	switch {
	case st.Query != "":
		t.Keyword = strings.TrimSpace(st.Query)
		t.SearchVolume = st.SearchVolume
		if len(st.TrendBreakdown) > 0 {
			t.RelatedKeywords = st.TrendBreakdown
		} else {
			for _, q := range st.RelatedQueries {
				if q.Query != "" {
					t.RelatedKeywords = append(t.RelatedKeywords, q.Query)
				}
			}
		}
		for _, c := range st.Categories {
			if c.Name != "" {
				t.Categories = append(t.Categories, c.Name)
			}
		}
	case st.Title != nil:
		t.Keyword = strings.TrimSpace(st.Title.Query)
		for _, a := range st.Articles {
			if a.Title != "" {
				t.RelatedKeywords = append(t.RelatedKeywords, a.Title)
			}
			if a.Source != "" {
				t.Categories = append(t.Categories, a.Source)
			}
		}
	}
	for _, a := range st.Articles {
		if a.Link != "" {
			t.ArticleURLs = append(t.ArticleURLs, a.Link)
		}
	}
	return t
}
