// Package search maintains an in-memory full-text index over published
// posts, rebuilt at startup and updated as posts are published or archived.
package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
)

// Doc is the indexed shape of a published post.
type Doc struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Meta     string `json:"meta"`
	Keyword  string `json:"keyword"`
	Template string `json:"template"`
}

// Hit is a scored search result.
type Hit struct {
	ID    string  `json:"id"`
	Slug  string  `json:"slug"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Index wraps a bleve memory index. All methods are safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	docs map[string]Doc
}

func New() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	return &Index{idx: idx, docs: make(map[string]Doc)}, nil
}

// Add indexes or reindexes a post by id.
func (s *Index) Add(id string, doc Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idx.Index(id, doc); err != nil {
		return fmt.Errorf("indexing post %s: %w", id, err)
	}
	s.docs[id] = doc
	return nil
}

// Remove drops a post from the index, e.g. after archiving.
func (s *Index) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idx.Delete(id); err != nil {
		return fmt.Errorf("removing post %s: %w", id, err)
	}
	delete(s.docs, id)
	return nil
}

// Search runs a query-string query and returns up to limit scored hits.
func (s *Index) Search(q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(q))
	req.Size = limit
	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if doc, ok := s.docs[h.ID]; ok {
			hit.Slug = doc.Slug
			hit.Title = doc.Title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed posts.
func (s *Index) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.DocCount()
}
