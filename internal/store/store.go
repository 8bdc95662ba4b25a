package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store wraps the relational database. All writes are single-row
// inserts/updates; row-level locking from Postgres is the only coordination.
type Store struct {
	DB *sql.DB
}

// Blog post statuses.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Process log step statuses.
const (
	StepStarted   = "started"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed,
// e.g. publishing an archived post.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// TrendingTopic is a fetched trending search query.
type TrendingTopic struct {
	ID              string
	Keyword         string
	Rank            int
	Region          string
	Category        string
	SearchVolume    int
	RelatedKeywords []string
	FetchedAt       time.Time
	Processed       bool
	FilteredOut     bool
	FilterReason    string
}

// BlogPost is a generated (or manually created) blog post.
type BlogPost struct {
	ID              string
	Title           string
	Slug            string
	MetaDescription string
	ContentJSON     []byte
	ContentHTML     string
	TemplateID      string
	TopicID         *string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ScheduledAt     *time.Time
	PublishedAt     *time.Time
	ViewCount       int
}

// ProcessEntry is one append-only process log row.
type ProcessEntry struct {
	ProcessID string
	Step      string
	Status    string
	Message   string
	Detail    map[string]interface{}
	CreatedAt time.Time
}

// ProcessSummary aggregates the entries of one automation process.
type ProcessSummary struct {
	ProcessID string
	StartedAt time.Time
	Steps     int
	Outcome   string // running, completed or failed
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Trending topic operations

// CreateTopic inserts one trending topic and returns its id.
func (s *Store) CreateTopic(ctx context.Context, t TrendingTopic) (string, error) {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	related, err := json.Marshal(t.RelatedKeywords)
	if err != nil {
		return "", err
	}
	fetchedAt := t.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO trending_topics (id, keyword, rank, region, category, search_volume, related_keywords, fetched_at, processed, filtered_out)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false)`,
		id, t.Keyword, t.Rank, t.Region, t.Category, t.SearchVolume, related, fetchedAt, t.Processed)
	if err != nil {
		return "", fmt.Errorf("insert trending topic: %w", err)
	}
	return id, nil
}

// InsertTopics stores a ranked batch of fetched topics. Rows that fail to
// insert are skipped; an error is returned only when no row could be stored.
func (s *Store) InsertTopics(ctx context.Context, topics []TrendingTopic) (int, error) {
	count := 0
	var firstErr error
	for _, t := range topics {
		if t.Keyword == "" {
			continue
		}
		if _, err := s.CreateTopic(ctx, t); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	if count == 0 && firstErr != nil {
		return 0, firstErr
	}
	return count, nil
}

// RecentUnprocessedTopics returns unprocessed, unfiltered topics fetched
// since the given time, most recent first then by rank.
func (s *Store) RecentUnprocessedTopics(ctx context.Context, since time.Time, limit int) ([]TrendingTopic, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, keyword, rank, region, category, search_volume, related_keywords, fetched_at
		FROM trending_topics
		WHERE fetched_at >= $1 AND processed = false AND filtered_out = false
		ORDER BY fetched_at DESC, rank ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrendingTopic
	for rows.Next() {
		var t TrendingTopic
		var related []byte
		if err := rows.Scan(&t.ID, &t.Keyword, &t.Rank, &t.Region, &t.Category, &t.SearchVolume, &related, &t.FetchedAt); err != nil {
			return nil, err
		}
		if len(related) > 0 {
			_ = json.Unmarshal(related, &t.RelatedKeywords)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkTopicProcessed flags a topic as consumed by a cycle.
func (s *Store) MarkTopicProcessed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE trending_topics SET processed = true WHERE id=$1`, id)
	return err
}

// MarkTopicFiltered flags a topic as rejected by the quality filter.
func (s *Store) MarkTopicFiltered(ctx context.Context, id, reason string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE trending_topics SET processed = true, filtered_out = true, filter_reason = $2 WHERE id=$1`,
		id, reason)
	return err
}

// PendingTopicCount counts topics awaiting processing.
func (s *Store) PendingTopicCount(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM trending_topics WHERE processed = false AND filtered_out = false`).Scan(&n)
	return n, err
}

// Blog post operations

// CreatePost inserts a post and returns its id. The slug must already be
// unique; callers build it via SlugExists.
func (s *Store) CreatePost(ctx context.Context, p BlogPost) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO blog_posts (id, title, slug, meta_description, content_json, content_html, template_id, topic_id, status, created_at, updated_at, scheduled_at, published_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now(),$10,$11)`,
		id, p.Title, p.Slug, p.MetaDescription, p.ContentJSON, p.ContentHTML, p.TemplateID, p.TopicID, p.Status, p.ScheduledAt, p.PublishedAt)
	if err != nil {
		return "", fmt.Errorf("insert blog post: %w", err)
	}
	return id, nil
}

// SlugExists reports whether a post already uses the slug.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM blog_posts WHERE slug=$1`, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const postColumns = `id, title, slug, meta_description, content_json, content_html, template_id, topic_id, status, created_at, updated_at, scheduled_at, published_at, view_count`

func scanPost(row interface{ Scan(...interface{}) error }) (BlogPost, error) {
	var p BlogPost
	var topicID sql.NullString
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.MetaDescription, &p.ContentJSON, &p.ContentHTML,
		&p.TemplateID, &topicID, &p.Status, &p.CreatedAt, &p.UpdatedAt, &scheduledAt, &publishedAt, &p.ViewCount)
	if err != nil {
		return BlogPost{}, err
	}
	if topicID.Valid {
		p.TopicID = &topicID.String
	}
	if scheduledAt.Valid {
		v := scheduledAt.Time
		p.ScheduledAt = &v
	}
	if publishedAt.Valid {
		v := publishedAt.Time
		p.PublishedAt = &v
	}
	return p, nil
}

// GetPostBySlug returns one post regardless of status.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (BlogPost, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE slug=$1`, slug)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, ErrNotFound
	}
	return p, err
}

// GetPostByID returns one post regardless of status.
func (s *Store) GetPostByID(ctx context.Context, id string) (BlogPost, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE id=$1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, ErrNotFound
	}
	return p, err
}

// ListPostsByStatus returns posts with the given status, newest first.
func (s *Store) ListPostsByStatus(ctx context.Context, status string, limit, offset int) ([]BlogPost, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+postColumns+` FROM blog_posts WHERE status=$1
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlogPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PublishPost flips a draft or scheduled post to published. Archived posts
// never re-publish.
func (s *Store) PublishPost(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE blog_posts SET status=$2, published_at=now(), updated_at=now()
		WHERE id=$1 AND status IN ($3,$4)`,
		id, StatusPublished, StatusDraft, StatusScheduled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ArchivePost moves a post into the terminal archived status.
func (s *Store) ArchivePost(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE blog_posts SET status=$2, updated_at=now() WHERE id=$1 AND status <> $2`,
		id, StatusArchived)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PublishDue publishes scheduled posts whose scheduled time has passed and
// returns them for downstream indexing.
func (s *Store) PublishDue(ctx context.Context, now time.Time) ([]BlogPost, error) {
	rows, err := s.DB.QueryContext(ctx, `
		UPDATE blog_posts SET status=$1, published_at=$2, updated_at=$2
		WHERE status=$3 AND scheduled_at <= $2
		RETURNING `+postColumns, StatusPublished, now, StatusScheduled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlogPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncrementViewCount bumps the post view counter.
func (s *Store) IncrementViewCount(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE blog_posts SET view_count = view_count + 1 WHERE id=$1`, id)
	return err
}

// CountPostsByStatus returns post counts keyed by status.
func (s *Store) CountPostsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, count(*) FROM blog_posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// Process log operations

// AppendProcessLog writes one append-only log entry.
func (s *Store) AppendProcessLog(ctx context.Context, e ProcessEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO process_logs (process_id, step, status, message, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,now())`,
		e.ProcessID, e.Step, e.Status, e.Message, detail)
	return err
}

// ListProcesses summarises recent automation processes, newest first.
func (s *Store) ListProcesses(ctx context.Context, limit int) ([]ProcessSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT process_id, min(created_at) AS started_at, count(*) AS steps,
		       CASE
		         WHEN bool_or(status = 'failed') THEN 'failed'
		         WHEN bool_or(step = 'PIPELINE' AND status = 'completed') THEN 'completed'
		         ELSE 'running'
		       END AS outcome
		FROM process_logs
		GROUP BY process_id
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessSummary
	for rows.Next() {
		var p ProcessSummary
		if err := rows.Scan(&p.ProcessID, &p.StartedAt, &p.Steps, &p.Outcome); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProcessEntries returns all entries of one process in order.
func (s *Store) ListProcessEntries(ctx context.Context, processID string) ([]ProcessEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT process_id, step, status, message, detail, created_at
		FROM process_logs WHERE process_id=$1 ORDER BY created_at ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessEntry
	for rows.Next() {
		var e ProcessEntry
		var detail []byte
		if err := rows.Scan(&e.ProcessID, &e.Step, &e.Status, &e.Message, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestProcessTime returns when a step last started, or nil if never.
func (s *Store) LatestProcessTime(ctx context.Context, step string) (*time.Time, error) {
	var t sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
		SELECT max(created_at) FROM process_logs WHERE step=$1 AND status=$2`, step, StepStarted).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	v := t.Time
	return &v, nil
}

// ClaimIdempotency records a (scope, key) pair once; the second caller gets
// false and should skip the event.
func (s *Store) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO idempotency_keys (scope, key, created_at) VALUES ($1,$2,now())
		ON CONFLICT (scope, key) DO NOTHING`, scope, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
