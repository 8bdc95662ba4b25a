package automation

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/catalog"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/trends"
	"github.com/blogify-ai/blogify/models"
	"github.com/blogify-ai/blogify/provider"
)

type stubStore struct {
	topics    []store.TrendingTopic
	topicsErr error

	inserted  []store.TrendingTopic
	insertErr error

	processed []string
	filtered  map[string]string

	posts     []store.BlogPost
	createErr error
	slugTaken map[string]bool

	logs []store.ProcessEntry
}

func (s *stubStore) RecentUnprocessedTopics(_ context.Context, _ time.Time, _ int) ([]store.TrendingTopic, error) {
	return s.topics, s.topicsErr
}

func (s *stubStore) InsertTopics(_ context.Context, topics []store.TrendingTopic) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, topics...)
	return len(topics), nil
}

func (s *stubStore) MarkTopicProcessed(_ context.Context, id string) error {
	s.processed = append(s.processed, id)
	return nil
}

func (s *stubStore) MarkTopicFiltered(_ context.Context, id, reason string) error {
	if s.filtered == nil {
		s.filtered = map[string]string{}
	}
	s.filtered[id] = reason
	return nil
}

func (s *stubStore) CreatePost(_ context.Context, p store.BlogPost) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.posts = append(s.posts, p)
	return p.ID, nil
}

func (s *stubStore) SlugExists(_ context.Context, slug string) (bool, error) {
	return s.slugTaken[slug], nil
}

func (s *stubStore) AppendProcessLog(_ context.Context, e store.ProcessEntry) error {
	s.logs = append(s.logs, e)
	return nil
}

type stubTrends struct {
	topics []trends.Topic
	err    error
}

func (s *stubTrends) TrendingNow(context.Context) ([]trends.Topic, error) {
	return s.topics, s.err
}

type stubProvider struct {
	selectIdx    int
	selectErr    error
	templateID   string
	templateErr  error
	content      models.Content
	genErr       error
	repaired     models.Content
	repairErr    error
	repairCalled bool
}

func (s *stubProvider) SelectTopic(_ context.Context, keywords []string) (int, string, error) {
	return s.selectIdx, "picked", s.selectErr
}

func (s *stubProvider) SelectTemplate(context.Context, string, string) (string, error) {
	return s.templateID, s.templateErr
}

func (s *stubProvider) GenerateContent(context.Context, provider.ContentRequest) (models.Content, []provider.Message, error) {
	if s.genErr != nil {
		return models.Content{}, nil, s.genErr
	}
	history := []provider.Message{{Role: "user", Content: "prompt"}, {Role: "model", Content: "reply"}}
	return s.content, history, nil
}

func (s *stubProvider) RepairContent(context.Context, []provider.Message, string, []string) (models.Content, error) {
	s.repairCalled = true
	return s.repaired, s.repairErr
}

func (s *stubProvider) Chat(context.Context, []provider.Message, string) (string, error) {
	return "", nil
}

func validContent() models.Content {
	return models.Content{
		Title:           "Quantum Laptops Explained",
		MetaDescription: "What quantum laptops mean for everyday computing.",
		Introduction:    "Intro.",
		Sections:        []models.Section{{H2: "Basics", Content: "..."}},
		Conclusion:      "Wrap up.",
	}
}

func testConfig() config.AutomationConfig {
	return config.AutomationConfig{
		TopicLookback:       4 * time.Hour,
		PublishMode:         "immediate",
		PublishDelay:        time.Hour,
		DefaultTopics:       []string{"productivity tips"},
		TopicSelectionLimit: 10,
	}.Normalize()
}

func newTestOrchestrator(t *testing.T, cfg config.AutomationConfig, st *stubStore, tr *stubTrends, p *stubProvider) *Orchestrator {
	t.Helper()
	cat, err := catalog.Load("../../templates/catalog.json", "../../templates")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	if st.slugTaken == nil {
		st.slugTaken = map[string]bool{}
	}
	logger := log.New(io.Discard, "", 0)
	return New(cfg, st, tr, p, cat, nil, logger)
}

func stepOutcome(res CycleResult, step string) StepOutcome {
	for _, s := range res.Steps {
		if s.Step == step {
			return s.Outcome
		}
	}
	return ""
}

func TestRunCycleEndToEnd(t *testing.T) {
	st := &stubStore{}
	tr := &stubTrends{topics: []trends.Topic{
		{Keyword: "topic a", Rank: 1},
		{Keyword: "topic b", Rank: 2, RelatedKeywords: []string{"b related"}},
	}}
	p := &stubProvider{selectIdx: 1, templateID: "template2", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, tr, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if res.Keyword != "topic b" {
		t.Fatalf("keyword = %q, want topic b", res.Keyword)
	}
	if res.TemplateID != "template2" {
		t.Fatalf("template = %q", res.TemplateID)
	}
	if !res.Published {
		t.Fatal("post not published in immediate mode")
	}
	if len(st.posts) != 1 {
		t.Fatalf("created %d posts, want 1", len(st.posts))
	}
	post := st.posts[0]
	if post.Status != store.StatusPublished || post.PublishedAt == nil {
		t.Fatalf("post status = %q, published_at = %v", post.Status, post.PublishedAt)
	}
	if post.Slug != "quantum-laptops-explained" {
		t.Fatalf("slug = %q", post.Slug)
	}
	if len(st.inserted) != 2 {
		t.Fatalf("inserted %d topics, want 2", len(st.inserted))
	}
	if len(st.processed) != 1 {
		t.Fatalf("processed = %v", st.processed)
	}

	var sawPipelineCompleted bool
	for _, e := range st.logs {
		if e.Step == StepPipeline && e.Status == store.StepCompleted {
			sawPipelineCompleted = true
		}
	}
	if !sawPipelineCompleted {
		t.Fatal("no PIPELINE completed log entry")
	}
}

func TestRunCycleStoresTopicRegionAndCategory(t *testing.T) {
	st := &stubStore{}
	tr := &stubTrends{topics: []trends.Topic{
		{Keyword: "solar eclipse", Rank: 1, Region: "US", Categories: []string{"Science", "Weather"}},
	}}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, tr, p)
	if _, err := orch.RunCycle(context.Background(), Options{}); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(st.inserted) != 1 {
		t.Fatalf("inserted %d topics, want 1", len(st.inserted))
	}
	row := st.inserted[0]
	if row.Region != "US" {
		t.Fatalf("region = %q, want US", row.Region)
	}
	if row.Category != "Science, Weather" {
		t.Fatalf("category = %q, want joined names", row.Category)
	}
	if row.FetchedAt.IsZero() {
		t.Fatal("fetched_at not set")
	}
}

func TestFetchTrendsStoresRegionAndCategory(t *testing.T) {
	st := &stubStore{}
	tr := &stubTrends{topics: []trends.Topic{
		{Keyword: "world cup final", Rank: 1, Region: "GB", Categories: []string{"Sports"}},
	}}

	orch := newTestOrchestrator(t, testConfig(), st, tr, &stubProvider{})
	n, err := orch.FetchTrends(context.Background())
	if err != nil {
		t.Fatalf("FetchTrends: %v", err)
	}
	if n != 1 || len(st.inserted) != 1 {
		t.Fatalf("stored %d, inserted %d", n, len(st.inserted))
	}
	if st.inserted[0].Region != "GB" || st.inserted[0].Category != "Sports" {
		t.Fatalf("row = %+v", st.inserted[0])
	}
}

func TestRunCycleTrendsDownUsesDefaults(t *testing.T) {
	st := &stubStore{}
	tr := &stubTrends{err: errors.New("connection refused")}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, tr, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Keyword != "productivity tips" {
		t.Fatalf("keyword = %q", res.Keyword)
	}
	if got := stepOutcome(res, StepFetchTopics); got != OutcomeFallback {
		t.Fatalf("fetch outcome = %q, want fallback", got)
	}
	if len(st.posts) != 1 {
		t.Fatalf("created %d posts, want 1", len(st.posts))
	}
}

func TestRunCycleTopicSelectionFallsBackToFirst(t *testing.T) {
	st := &stubStore{topics: []store.TrendingTopic{
		{ID: "t1", Keyword: "first topic"},
		{ID: "t2", Keyword: "second topic"},
	}}
	p := &stubProvider{selectErr: errors.New("timeout"), templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Keyword != "first topic" {
		t.Fatalf("keyword = %q", res.Keyword)
	}
	if got := stepOutcome(res, StepSelectTopic); got != OutcomeFallback {
		t.Fatalf("select outcome = %q, want fallback", got)
	}
}

func TestRunCycleUnknownTemplateFallsBack(t *testing.T) {
	st := &stubStore{topics: []store.TrendingTopic{{ID: "t1", Keyword: "some topic"}}}
	p := &stubProvider{templateID: "template42", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.TemplateID != "template1" {
		t.Fatalf("template = %q, want template1", res.TemplateID)
	}
	if got := stepOutcome(res, StepSelectTemplate); got != OutcomeFallback {
		t.Fatalf("template outcome = %q, want fallback", got)
	}
}

func TestRunCycleRepairsMissingFields(t *testing.T) {
	broken := validContent()
	broken.Conclusion = ""

	st := &stubStore{topics: []store.TrendingTopic{{ID: "t1", Keyword: "some topic"}}}
	p := &stubProvider{templateID: "template5", content: broken, repaired: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !p.repairCalled {
		t.Fatal("repair was not attempted")
	}
	if got := stepOutcome(res, StepGenerate); got != OutcomeFallback {
		t.Fatalf("generate outcome = %q, want fallback", got)
	}
	if len(st.posts) != 1 {
		t.Fatalf("created %d posts, want 1", len(st.posts))
	}
}

func TestRunCycleFailsWhenRepairStillIncomplete(t *testing.T) {
	broken := validContent()
	broken.Conclusion = ""

	st := &stubStore{topics: []store.TrendingTopic{{ID: "t1", Keyword: "some topic"}}}
	p := &stubProvider{templateID: "template5", content: broken, repaired: broken}

	orch := newTestOrchestrator(t, testConfig(), st, &stubTrends{}, p)
	if _, err := orch.RunCycle(context.Background(), Options{}); err == nil {
		t.Fatal("expected cycle failure")
	}
	if len(st.posts) != 0 {
		t.Fatalf("created %d posts, want 0 on abort", len(st.posts))
	}
}

func TestRunCycleSlugCollisionGetsSuffix(t *testing.T) {
	st := &stubStore{
		topics:    []store.TrendingTopic{{ID: "t1", Keyword: "some topic"}},
		slugTaken: map[string]bool{"quantum-laptops-explained": true},
	}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, testConfig(), st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Slug != "quantum-laptops-explained-2" {
		t.Fatalf("slug = %q", res.Slug)
	}
}

func TestRunCycleBannedTopicsFiltered(t *testing.T) {
	cfg := testConfig()
	cfg.BannedKeywords = []string{"scandal"}
	st := &stubStore{topics: []store.TrendingTopic{
		{ID: "bad", Keyword: "celebrity scandal exposed"},
		{ID: "good", Keyword: "garden planning"},
	}}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, cfg, st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Keyword != "garden planning" {
		t.Fatalf("keyword = %q", res.Keyword)
	}
	if _, ok := st.filtered["bad"]; !ok {
		t.Fatal("banned topic not marked filtered")
	}
}

func TestRunCycleScheduledMode(t *testing.T) {
	cfg := testConfig()
	cfg.PublishMode = "scheduled"
	st := &stubStore{topics: []store.TrendingTopic{{ID: "t1", Keyword: "some topic"}}}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, cfg, st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Published {
		t.Fatal("post published in scheduled mode")
	}
	if res.ScheduledAt == nil {
		t.Fatal("no scheduled time on result")
	}
	post := st.posts[0]
	if post.Status != store.StatusScheduled || post.ScheduledAt == nil {
		t.Fatalf("post status = %q, scheduled_at = %v", post.Status, post.ScheduledAt)
	}
}

func TestRunCycleForcedTopicAndPublish(t *testing.T) {
	cfg := testConfig()
	cfg.PublishMode = "scheduled"
	st := &stubStore{}
	p := &stubProvider{templateID: "template1", content: validContent()}

	orch := newTestOrchestrator(t, cfg, st, &stubTrends{}, p)
	res, err := orch.RunCycle(context.Background(), Options{Topic: "forced topic", Publish: true})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Keyword != "forced topic" {
		t.Fatalf("keyword = %q", res.Keyword)
	}
	if !res.Published {
		t.Fatal("forced publish ignored")
	}
	if len(st.inserted) != 0 {
		t.Fatal("forced topic should not trigger a trends fetch")
	}
}
