package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/blogify-ai/blogify/internal/search"
	"github.com/blogify-ai/blogify/internal/store"
)

func newMockPostsHandler(t *testing.T) (*PostsHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	idx, err := search.New()
	if err != nil {
		t.Fatalf("search index: %v", err)
	}
	return &PostsHandler{Store: &store.Store{DB: db}, Index: idx}, mock
}

func postColumns() []string {
	return []string{
		"id", "title", "slug", "meta_description", "content_json", "content_html",
		"template_id", "topic_id", "status", "created_at", "updated_at",
		"scheduled_at", "published_at", "view_count",
	}
}

func TestListPosts(t *testing.T) {
	h, mock := newMockPostsHandler(t)
	now := time.Now()
	rows := sqlmock.NewRows(postColumns()).
		AddRow("p1", "First Post", "first-post", "meta", []byte(`{}`), "<article/>",
			"template1", nil, store.StatusPublished, now, now, nil, now, 3)
	mock.ExpectQuery("SELECT .* FROM blog_posts WHERE status=").
		WithArgs(store.StatusPublished, 20, 0).
		WillReturnRows(rows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Posts []postSummary `json:"posts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Posts) != 1 || body.Posts[0].Slug != "first-post" || body.Posts[0].ViewCount != 3 {
		t.Fatalf("posts = %+v", body.Posts)
	}
}

func TestGetPostHidesUnpublished(t *testing.T) {
	h, mock := newMockPostsHandler(t)
	now := time.Now()
	rows := sqlmock.NewRows(postColumns()).
		AddRow("p1", "Draft Post", "draft-post", "meta", []byte(`{}`), "<article/>",
			"template1", nil, store.StatusDraft, now, now, nil, nil, 0)
	mock.ExpectQuery("SELECT .* FROM blog_posts WHERE slug=").
		WithArgs("draft-post").
		WillReturnRows(rows)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/posts/:slug")
	c.SetParamNames("slug")
	c.SetParamValues("draft-post")

	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestPublishConflict(t *testing.T) {
	h, mock := newMockPostsHandler(t)
	mock.ExpectExec("UPDATE blog_posts SET status=").
		WithArgs("p1", store.StatusPublished, store.StatusDraft, store.StatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/posts/:id/publish")
	c.SetParamNames("id")
	c.SetParamValues("p1")

	err := h.publish(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	h, _ := newMockPostsHandler(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/posts/search", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.search(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}
