// Package trends fetches trending search queries from the content provider.
package trends

import "context"

// Topic is one ranked trending search query.
type Topic struct {
	Keyword         string
	Rank            int
	Region          string
	SearchVolume    int
	Categories      []string
	RelatedKeywords []string
	ArticleURLs     []string
}

// Client supplies ranked trending topics for a region/category.
type Client interface {
	TrendingNow(ctx context.Context) ([]Topic, error)
}
