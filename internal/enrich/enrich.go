// Package enrich fetches background articles for a trending topic and
// extracts readable text excerpts to ground content generation.
package enrich

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout  = 15 * time.Second
	maxExcerptLen = 2000
)

// Fetcher downloads article pages and returns plain-text excerpts.
type Fetcher struct {
	httpClient *http.Client
	logger     *log.Logger
}

func New(logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		logger:     logger,
	}
}

// Excerpts fetches up to limit URLs and extracts the main article text from
// each. Failures are logged and skipped; the pipeline works fine with fewer
// excerpts than requested.
func (f *Fetcher) Excerpts(ctx context.Context, urls []string, limit int) []string {
	if limit <= 0 || len(urls) == 0 {
		return nil
	}
	var out []string
	for _, raw := range urls {
		if len(out) >= limit {
			break
		}
		text, err := f.excerpt(ctx, raw)
		if err != nil {
			f.logger.Printf("[ENRICH] skipping %s: %v", raw, err)
			continue
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (f *Fetcher) excerpt(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "blogify/1.0 (+https://github.com/blogify-ai/blogify)")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxExcerptLen {
		text = text[:maxExcerptLen]
	}
	return text, nil
}
