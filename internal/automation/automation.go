// Package automation runs the end-to-end content pipeline: trending topics
// in, rendered blog posts out. Every run is tracked as a process with
// per-step rows in process_logs.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	gslug "github.com/gosimple/slug"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/catalog"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/telemetry"
	"github.com/blogify-ai/blogify/internal/trends"
	"github.com/blogify-ai/blogify/models"
	"github.com/blogify-ai/blogify/provider"
)

// Pipeline step names as persisted to process_logs.
const (
	StepPipeline       = "PIPELINE"
	StepFetchTopics    = "FETCH_TRENDING_TOPICS"
	StepSelectTopic    = "SELECT_TOPIC"
	StepSelectTemplate = "SELECT_TEMPLATE"
	StepGenerate       = "GENERATE_CONTENT"
	StepRender         = "RENDER_CONTENT"
	StepCreatePost     = "CREATE_BLOG_POST"
)

// StepOutcome describes how a step finished.
type StepOutcome string

const (
	OutcomeOK       StepOutcome = "ok"
	OutcomeFallback StepOutcome = "fallback"
	OutcomeFailed   StepOutcome = "failed"
)

// StepResult is the per-step record carried in a CycleResult.
type StepResult struct {
	Step    string      `json:"step"`
	Outcome StepOutcome `json:"outcome"`
	Detail  string      `json:"detail,omitempty"`
}

// CycleResult summarises one pipeline run.
type CycleResult struct {
	ProcessID   string       `json:"process_id"`
	PostID      string       `json:"post_id,omitempty"`
	Slug        string       `json:"slug,omitempty"`
	Keyword     string       `json:"keyword,omitempty"`
	TemplateID  string       `json:"template_id,omitempty"`
	Published   bool         `json:"published"`
	ScheduledAt *time.Time   `json:"scheduled_at,omitempty"`
	Steps       []StepResult `json:"steps"`
}

// Options force parts of a cycle, used by the generate command and queued
// requests. Zero value means a fully automatic run.
type Options struct {
	Topic    string // skip topic selection, write about this keyword
	Template string // skip template selection, use this template id
	Publish  bool   // publish immediately regardless of publish_mode
}

// Storage is the slice of the store the orchestrator needs.
type Storage interface {
	RecentUnprocessedTopics(ctx context.Context, since time.Time, limit int) ([]store.TrendingTopic, error)
	InsertTopics(ctx context.Context, topics []store.TrendingTopic) (int, error)
	MarkTopicProcessed(ctx context.Context, id string) error
	MarkTopicFiltered(ctx context.Context, id, reason string) error
	CreatePost(ctx context.Context, p store.BlogPost) (string, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	AppendProcessLog(ctx context.Context, e store.ProcessEntry) error
}

// Enricher supplies article excerpts for prompt grounding.
type Enricher interface {
	Excerpts(ctx context.Context, urls []string, limit int) []string
}

// Orchestrator wires the trends client, the generation provider, the
// template catalog and the store into one pipeline.
type Orchestrator struct {
	cfg      config.AutomationConfig
	store    Storage
	trends   trends.Client
	provider provider.Provider
	catalog  *catalog.Catalog
	enricher Enricher
	logger   *log.Logger
	now      func() time.Time
}

func New(cfg config.AutomationConfig, st Storage, tc trends.Client, p provider.Provider, cat *catalog.Catalog, enricher Enricher, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		trends:   tc,
		provider: p,
		catalog:  cat,
		enricher: enricher,
		logger:   logger,
		now:      time.Now,
	}
}

// candidate is a topic the selection step can choose from. Stored topics
// carry an id; fallback defaults and forced topics do not.
type candidate struct {
	id          string
	keyword     string
	related     []string
	articleURLs []string
}

// RunCycle executes one full pipeline run. A non-nil error means the cycle
// aborted with no post persisted; fallbacks along the way are recorded in
// the result's step list instead of failing the run.
func (o *Orchestrator) RunCycle(ctx context.Context, opts Options) (CycleResult, error) {
	res := CycleResult{ProcessID: uuid.NewString()}
	o.logStep(ctx, res.ProcessID, StepPipeline, store.StepStarted, "cycle started", nil)

	err := o.runSteps(ctx, opts, &res)
	if err != nil {
		o.logStep(ctx, res.ProcessID, StepPipeline, store.StepFailed, err.Error(), nil)
		telemetry.CyclesTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	outcome := "completed"
	for _, s := range res.Steps {
		if s.Outcome == OutcomeFallback {
			outcome = "fallback"
			break
		}
	}
	o.logStep(ctx, res.ProcessID, StepPipeline, store.StepCompleted, "cycle completed", map[string]interface{}{
		"post_id": res.PostID,
		"slug":    res.Slug,
	})
	telemetry.CyclesTotal.WithLabelValues(outcome).Inc()
	return res, nil
}

func (o *Orchestrator) runSteps(ctx context.Context, opts Options, res *CycleResult) error {
	cands, step := o.gatherTopics(ctx, res.ProcessID, opts)
	res.Steps = append(res.Steps, step)
	if step.Outcome == OutcomeFailed {
		return fmt.Errorf("no topics available: %s", step.Detail)
	}

	chosen, step := o.selectTopic(ctx, res.ProcessID, cands)
	res.Steps = append(res.Steps, step)
	res.Keyword = chosen.keyword

	desc, step := o.selectTemplate(ctx, res.ProcessID, opts, chosen.keyword)
	res.Steps = append(res.Steps, step)
	res.TemplateID = desc.ID

	content, step := o.generateContent(ctx, res.ProcessID, chosen, desc)
	res.Steps = append(res.Steps, step)
	if step.Outcome == OutcomeFailed {
		return fmt.Errorf("content generation failed: %s", step.Detail)
	}

	html, step := o.render(ctx, res.ProcessID, desc.ID, content)
	res.Steps = append(res.Steps, step)
	if step.Outcome == OutcomeFailed {
		return fmt.Errorf("render failed: %s", step.Detail)
	}

	step = o.createPost(ctx, res.ProcessID, opts, chosen, desc.ID, content, html, res)
	res.Steps = append(res.Steps, step)
	if step.Outcome == OutcomeFailed {
		return fmt.Errorf("persisting post failed: %s", step.Detail)
	}
	return nil
}

// gatherTopics assembles the candidate list: stored unprocessed topics
// first, then a fresh fetch, then configured defaults as the last resort.
func (o *Orchestrator) gatherTopics(ctx context.Context, processID string, opts Options) ([]candidate, StepResult) {
	o.logStep(ctx, processID, StepFetchTopics, store.StepStarted, "gathering topics", nil)

	if opts.Topic != "" {
		o.logStep(ctx, processID, StepFetchTopics, store.StepCompleted, "using forced topic", map[string]interface{}{"keyword": opts.Topic})
		return []candidate{{keyword: opts.Topic}}, StepResult{Step: StepFetchTopics, Outcome: OutcomeOK, Detail: "forced topic"}
	}

	since := o.now().Add(-o.cfg.TopicLookback)
	stored, err := o.store.RecentUnprocessedTopics(ctx, since, o.cfg.TopicSelectionLimit)
	if err != nil {
		o.logStep(ctx, processID, StepFetchTopics, store.StepFailed, err.Error(), nil)
		return nil, StepResult{Step: StepFetchTopics, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	cands := o.filterBanned(ctx, stored)
	if len(cands) > 0 {
		o.logStep(ctx, processID, StepFetchTopics, store.StepCompleted, fmt.Sprintf("%d stored topics", len(cands)), nil)
		return cands, StepResult{Step: StepFetchTopics, Outcome: OutcomeOK}
	}

	fetched, err := o.trends.TrendingNow(ctx)
	if err != nil {
		// Trends being down must not stop the pipeline.
		o.logger.Printf("[ORCH] trends fetch failed, using default topics: %v", err)
		o.logStep(ctx, processID, StepFetchTopics, store.StepCompleted, "trends unavailable, using defaults", map[string]interface{}{"error": err.Error()})
		var defaults []candidate
		for _, kw := range o.cfg.DefaultTopics {
			defaults = append(defaults, candidate{keyword: kw})
		}
		if len(defaults) == 0 {
			return nil, StepResult{Step: StepFetchTopics, Outcome: OutcomeFailed, Detail: "trends unavailable and no default topics configured"}
		}
		return defaults, StepResult{Step: StepFetchTopics, Outcome: OutcomeFallback, Detail: "default topics"}
	}

	rows := make([]store.TrendingTopic, 0, len(fetched))
	urlsByKeyword := make(map[string][]string, len(fetched))
	for _, t := range fetched {
		rows = append(rows, topicRow(t, o.now()))
		urlsByKeyword[t.Keyword] = t.ArticleURLs
	}
	if _, err := o.store.InsertTopics(ctx, rows); err != nil {
		o.logStep(ctx, processID, StepFetchTopics, store.StepFailed, err.Error(), nil)
		return nil, StepResult{Step: StepFetchTopics, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	telemetry.TrendsFetchedTotal.Add(float64(len(rows)))

	cands = o.filterBanned(ctx, rows)
	for i := range cands {
		cands[i].articleURLs = urlsByKeyword[cands[i].keyword]
	}
	if len(cands) == 0 {
		return nil, StepResult{Step: StepFetchTopics, Outcome: OutcomeFailed, Detail: "all fetched topics filtered out"}
	}
	if len(cands) > o.cfg.TopicSelectionLimit {
		cands = cands[:o.cfg.TopicSelectionLimit]
	}
	o.logStep(ctx, processID, StepFetchTopics, store.StepCompleted, fmt.Sprintf("%d fetched topics", len(cands)), nil)
	return cands, StepResult{Step: StepFetchTopics, Outcome: OutcomeOK}
}

// topicRow maps a fetched topic onto its trending_topics row, keeping the
// source region and the joined category names.
func topicRow(t trends.Topic, fetchedAt time.Time) store.TrendingTopic {
	return store.TrendingTopic{
		ID:              uuid.NewString(),
		Keyword:         t.Keyword,
		Rank:            t.Rank,
		Region:          t.Region,
		Category:        strings.Join(t.Categories, ", "),
		SearchVolume:    t.SearchVolume,
		RelatedKeywords: t.RelatedKeywords,
		FetchedAt:       fetchedAt,
	}
}

// filterBanned drops topics containing banned keywords and marks the
// dropped rows so they are not retried every cycle.
func (o *Orchestrator) filterBanned(ctx context.Context, rows []store.TrendingTopic) []candidate {
	var out []candidate
	for _, t := range rows {
		if banned := o.bannedMatch(t.Keyword); banned != "" {
			if t.ID != "" {
				if err := o.store.MarkTopicFiltered(ctx, t.ID, "banned keyword: "+banned); err != nil {
					o.logger.Printf("[ORCH] marking topic %s filtered: %v", t.ID, err)
				}
			}
			continue
		}
		out = append(out, candidate{id: t.ID, keyword: t.Keyword, related: t.RelatedKeywords})
	}
	return out
}

func (o *Orchestrator) bannedMatch(keyword string) string {
	lower := strings.ToLower(keyword)
	for _, b := range o.cfg.BannedKeywords {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}

// selectTopic asks the provider to pick a topic. Any provider trouble falls
// back to the first candidate rather than aborting.
func (o *Orchestrator) selectTopic(ctx context.Context, processID string, cands []candidate) (candidate, StepResult) {
	o.logStep(ctx, processID, StepSelectTopic, store.StepStarted, fmt.Sprintf("%d candidates", len(cands)), nil)
	if len(cands) == 1 {
		o.logStep(ctx, processID, StepSelectTopic, store.StepCompleted, "single candidate", map[string]interface{}{"keyword": cands[0].keyword})
		return cands[0], StepResult{Step: StepSelectTopic, Outcome: OutcomeOK}
	}

	keywords := make([]string, len(cands))
	for i, c := range cands {
		keywords[i] = c.keyword
	}
	idx, reason, err := o.provider.SelectTopic(ctx, keywords)
	if err != nil || idx < 0 || idx >= len(cands) {
		detail := "malformed selection"
		if err != nil {
			detail = err.Error()
		}
		o.logger.Printf("[ORCH] topic selection fell back to first candidate: %s", detail)
		o.logStep(ctx, processID, StepSelectTopic, store.StepCompleted, "fell back to first candidate", map[string]interface{}{"error": detail})
		telemetry.StepFailuresTotal.WithLabelValues(StepSelectTopic).Inc()
		return cands[0], StepResult{Step: StepSelectTopic, Outcome: OutcomeFallback, Detail: detail}
	}
	o.logStep(ctx, processID, StepSelectTopic, store.StepCompleted, reason, map[string]interface{}{"keyword": cands[idx].keyword})
	return cands[idx], StepResult{Step: StepSelectTopic, Outcome: OutcomeOK}
}

// selectTemplate asks the provider for a template id. Unknown or failing
// answers resolve to the catalog default.
func (o *Orchestrator) selectTemplate(ctx context.Context, processID string, opts Options, keyword string) (catalog.Descriptor, StepResult) {
	o.logStep(ctx, processID, StepSelectTemplate, store.StepStarted, "", nil)

	if opts.Template != "" {
		d, fell := o.catalog.Resolve(opts.Template)
		outcome := OutcomeOK
		if fell {
			outcome = OutcomeFallback
		}
		o.logStep(ctx, processID, StepSelectTemplate, store.StepCompleted, "forced template", map[string]interface{}{"template_id": d.ID})
		return d, StepResult{Step: StepSelectTemplate, Outcome: outcome, Detail: "forced"}
	}

	id, err := o.provider.SelectTemplate(ctx, keyword, o.catalog.Descriptions())
	if err != nil {
		o.logger.Printf("[ORCH] template selection failed, using default: %v", err)
		d := o.catalog.Default()
		o.logStep(ctx, processID, StepSelectTemplate, store.StepCompleted, "fell back to default template", map[string]interface{}{"error": err.Error()})
		telemetry.StepFailuresTotal.WithLabelValues(StepSelectTemplate).Inc()
		return d, StepResult{Step: StepSelectTemplate, Outcome: OutcomeFallback, Detail: err.Error()}
	}
	d, fell := o.catalog.Resolve(id)
	if fell {
		o.logStep(ctx, processID, StepSelectTemplate, store.StepCompleted, "unknown template id, using default", map[string]interface{}{"requested": id, "template_id": d.ID})
		return d, StepResult{Step: StepSelectTemplate, Outcome: OutcomeFallback, Detail: "unknown id " + id}
	}
	o.logStep(ctx, processID, StepSelectTemplate, store.StepCompleted, "", map[string]interface{}{"template_id": d.ID})
	return d, StepResult{Step: StepSelectTemplate, Outcome: OutcomeOK}
}

// generateContent asks for structured content and validates it against the
// template's required fields, retrying once with a corrective prompt.
func (o *Orchestrator) generateContent(ctx context.Context, processID string, chosen candidate, desc catalog.Descriptor) (models.Content, StepResult) {
	o.logStep(ctx, processID, StepGenerate, store.StepStarted, "", map[string]interface{}{"keyword": chosen.keyword, "template_id": desc.ID})

	var excerpts []string
	if o.enricher != nil && len(chosen.articleURLs) > 0 {
		excerpts = o.enricher.Excerpts(ctx, chosen.articleURLs, o.cfg.MaxContextArticles)
	}

	req := provider.ContentRequest{
		Keyword:         chosen.keyword,
		TemplateKey:     desc.ID,
		TemplateName:    desc.Name,
		RequiredFields:  desc.RequiredFields,
		RelatedKeywords: chosen.related,
		ContextExcerpts: excerpts,
	}
	content, history, err := o.provider.GenerateContent(ctx, req)
	if err != nil {
		o.logStep(ctx, processID, StepGenerate, store.StepFailed, err.Error(), nil)
		telemetry.StepFailuresTotal.WithLabelValues(StepGenerate).Inc()
		return models.Content{}, StepResult{Step: StepGenerate, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	missing, err := o.catalog.Validate(desc.ID, content)
	if err != nil {
		o.logStep(ctx, processID, StepGenerate, store.StepFailed, err.Error(), nil)
		return models.Content{}, StepResult{Step: StepGenerate, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	if len(missing) == 0 {
		o.logStep(ctx, processID, StepGenerate, store.StepCompleted, "", nil)
		return content, StepResult{Step: StepGenerate, Outcome: OutcomeOK}
	}

	o.logger.Printf("[ORCH] content missing fields %v, retrying with corrective prompt", missing)
	repaired, err := o.provider.RepairContent(ctx, history, chosen.keyword, missing)
	if err != nil {
		o.logStep(ctx, processID, StepGenerate, store.StepFailed, err.Error(), nil)
		telemetry.StepFailuresTotal.WithLabelValues(StepGenerate).Inc()
		return models.Content{}, StepResult{Step: StepGenerate, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	missing, err = o.catalog.Validate(desc.ID, repaired)
	if err != nil {
		o.logStep(ctx, processID, StepGenerate, store.StepFailed, err.Error(), nil)
		return models.Content{}, StepResult{Step: StepGenerate, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	if len(missing) > 0 {
		detail := "still missing after retry: " + strings.Join(missing, ", ")
		o.logStep(ctx, processID, StepGenerate, store.StepFailed, detail, nil)
		telemetry.StepFailuresTotal.WithLabelValues(StepGenerate).Inc()
		return models.Content{}, StepResult{Step: StepGenerate, Outcome: OutcomeFailed, Detail: detail}
	}
	o.logStep(ctx, processID, StepGenerate, store.StepCompleted, "after corrective retry", nil)
	return repaired, StepResult{Step: StepGenerate, Outcome: OutcomeFallback, Detail: "corrective retry"}
}

func (o *Orchestrator) render(ctx context.Context, processID, templateID string, content models.Content) (string, StepResult) {
	o.logStep(ctx, processID, StepRender, store.StepStarted, "", nil)
	html, err := o.catalog.Render(templateID, content)
	if err != nil {
		o.logStep(ctx, processID, StepRender, store.StepFailed, err.Error(), nil)
		telemetry.StepFailuresTotal.WithLabelValues(StepRender).Inc()
		return "", StepResult{Step: StepRender, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	o.logStep(ctx, processID, StepRender, store.StepCompleted, "", nil)
	return html, StepResult{Step: StepRender, Outcome: OutcomeOK}
}

// createPost persists the post with a unique slug and marks the source topic
// processed. Nothing is written before this step, so earlier failures leave
// no partial state.
func (o *Orchestrator) createPost(ctx context.Context, processID string, opts Options, chosen candidate, templateID string, content models.Content, html string, res *CycleResult) StepResult {
	o.logStep(ctx, processID, StepCreatePost, store.StepStarted, "", nil)

	title := content.Title
	if title == "" {
		title = chosen.keyword
	}
	unique, err := o.uniqueSlug(ctx, title)
	if err != nil {
		o.logStep(ctx, processID, StepCreatePost, store.StepFailed, err.Error(), nil)
		return StepResult{Step: StepCreatePost, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	raw, err := json.Marshal(content)
	if err != nil {
		o.logStep(ctx, processID, StepCreatePost, store.StepFailed, err.Error(), nil)
		return StepResult{Step: StepCreatePost, Outcome: OutcomeFailed, Detail: err.Error()}
	}

	now := o.now()
	post := store.BlogPost{
		ID:              uuid.NewString(),
		Title:           title,
		Slug:            unique,
		MetaDescription: content.MetaDescription,
		ContentJSON:     raw,
		ContentHTML:     html,
		TemplateID:      templateID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if chosen.id != "" {
		id := chosen.id
		post.TopicID = &id
	}
	if opts.Publish || o.cfg.PublishMode == "immediate" {
		post.Status = store.StatusPublished
		published := now
		post.PublishedAt = &published
		res.Published = true
	} else {
		post.Status = store.StatusScheduled
		scheduled := now.Add(o.cfg.PublishDelay)
		post.ScheduledAt = &scheduled
		res.ScheduledAt = &scheduled
	}

	id, err := o.store.CreatePost(ctx, post)
	if err != nil {
		o.logStep(ctx, processID, StepCreatePost, store.StepFailed, err.Error(), nil)
		telemetry.StepFailuresTotal.WithLabelValues(StepCreatePost).Inc()
		return StepResult{Step: StepCreatePost, Outcome: OutcomeFailed, Detail: err.Error()}
	}
	res.PostID = id
	res.Slug = unique

	if chosen.id != "" {
		if err := o.store.MarkTopicProcessed(ctx, chosen.id); err != nil {
			o.logger.Printf("[ORCH] marking topic %s processed: %v", chosen.id, err)
		}
	}
	if res.Published {
		telemetry.PostsPublishedTotal.WithLabelValues("immediate").Inc()
	}
	o.logStep(ctx, processID, StepCreatePost, store.StepCompleted, "", map[string]interface{}{"post_id": id, "slug": unique, "status": post.Status})
	return StepResult{Step: StepCreatePost, Outcome: OutcomeOK}
}

// uniqueSlug slugifies the title and appends a numeric suffix until the slug
// is free.
func (o *Orchestrator) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := gslug.Make(title)
	if base == "" {
		base = "post"
	}
	candidateSlug := base
	for i := 2; ; i++ {
		exists, err := o.store.SlugExists(ctx, candidateSlug)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidateSlug, err)
		}
		if !exists {
			return candidateSlug, nil
		}
		candidateSlug = fmt.Sprintf("%s-%d", base, i)
	}
}

// FetchTrends pulls the current trending topics and stores the new ones.
// Used by the fetch cron and the fetch-trends command.
func (o *Orchestrator) FetchTrends(ctx context.Context) (int, error) {
	fetched, err := o.trends.TrendingNow(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching trends: %w", err)
	}
	rows := make([]store.TrendingTopic, 0, len(fetched))
	for _, t := range fetched {
		rows = append(rows, topicRow(t, o.now()))
	}
	n, err := o.store.InsertTopics(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("storing trends: %w", err)
	}
	telemetry.TrendsFetchedTotal.Add(float64(n))
	o.logger.Printf("[ORCH] stored %d/%d trending topics", n, len(rows))
	return n, nil
}

// logStep writes a process_logs row and mirrors it to the logger. Log
// persistence failures are reported but never fail the pipeline.
func (o *Orchestrator) logStep(ctx context.Context, processID, step, status, msg string, detail map[string]interface{}) {
	e := store.ProcessEntry{
		ProcessID: processID,
		Step:      step,
		Status:    status,
		Message:   msg,
		Detail:    detail,
		CreatedAt: o.now(),
	}
	if err := o.store.AppendProcessLog(ctx, e); err != nil {
		o.logger.Printf("[ORCH] process log write failed (%s/%s): %v", step, status, err)
	}
	if msg != "" {
		o.logger.Printf("[ORCH] %s %s %s: %s", processID[:8], step, status, msg)
	} else {
		o.logger.Printf("[ORCH] %s %s %s", processID[:8], step, status)
	}
}
