package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/audit"
	"bizflow/internal/batch"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/fault"
	"bizflow/internal/lifecycle"
	"bizflow/internal/logger"
	"bizflow/internal/paginate"
	"bizflow/internal/slug"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	entityPost     = "blog_post"
	entityCategory = "blog_category"
	wordsPerMinute = 200
	relatedLimit   = 3
)

type Deps struct {
	Events events.Publisher
	Audit  audit.Recorder
	Logger *logger.Logger
}

type Service struct {
	db     *sqlx.DB
	events events.Publisher
	audit  audit.Recorder
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *sqlx.DB, deps Deps) *Service {
	s := &Service{
		db:     db,
		events: deps.Events,
		audit:  deps.Audit,
		logger: deps.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	return s
}

// $1 is always the current time so scheduled posts flip to published
// without a background job.
const postSelect = `
	SELECT p.id, p.slug, p.title, p.excerpt, p.content, p.cover_image, p.category_id,
		c.slug AS category_slug, c.name AS category_name, p.author_id::text AS author_id,
		CASE WHEN p.status = 'scheduled' AND p.published_at <= $1 THEN 'published' ELSE p.status END AS status,
		p.published_at, p.created_at, p.updated_at
	FROM blog_posts p
	LEFT JOIN blog_categories c ON c.id = p.category_id`

const visibleClause = `(p.status = 'published' OR (p.status = 'scheduled' AND p.published_at <= $1))`

const filterClause = `
	AND ($2 = '' OR c.slug = $2)
	AND ($3 = '' OR EXISTS (
		SELECT 1 FROM blog_post_tags pt JOIN blog_tags t ON t.id = pt.tag_id
		WHERE pt.post_id = p.id AND t.slug = $3))
	AND ($4 = '' OR p.title ILIKE '%' || $4 || '%' OR p.excerpt ILIKE '%' || $4 || '%')`

func (s *Service) ListPublished(ctx context.Context, f Filter) (*paginate.Page[Post], error) {
	query := postSelect + ` WHERE ` + visibleClause + filterClause + `
		ORDER BY p.published_at DESC NULLS LAST, p.id DESC`
	return s.listPage(ctx, query, []any{s.now(), f.Category, f.Tag, strings.TrimSpace(f.Search)}, f.Params)
}

// ListAll is the admin listing; Status filters on the effective status.
func (s *Service) ListAll(ctx context.Context, f Filter) (*paginate.Page[Post], error) {
	query := postSelect + ` WHERE TRUE` + filterClause + `
		AND ($5 = '' OR (CASE WHEN p.status = 'scheduled' AND p.published_at <= $1 THEN 'published' ELSE p.status END) = $5)
		ORDER BY p.updated_at DESC, p.id DESC`
	return s.listPage(ctx, query, []any{s.now(), f.Category, f.Tag, strings.TrimSpace(f.Search), f.Status}, f.Params)
}

func (s *Service) listPage(ctx context.Context, query string, args []any, p paginate.Params) (*paginate.Page[Post], error) {
	page, err := paginate.Query[Post](ctx, s.db, query, args, p)
	if err != nil {
		s.logger.Error("error list blog posts", zap.Error(err))
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if err := s.attachTags(ctx, s.db, page.Items); err != nil {
		return nil, err
	}
	for i := range page.Items {
		page.Items[i].ReadMinutes = readMinutes(page.Items[i].Content)
		page.Items[i].Content = ""
	}
	return page, nil
}

// GetBySlug returns visible posts only unless includeDrafts is set.
func (s *Service) GetBySlug(ctx context.Context, postSlug string, includeDrafts bool) (*Post, error) {
	query := postSelect + ` WHERE p.slug = $2`
	if !includeDrafts {
		query += ` AND ` + visibleClause
	}
	return s.getOne(ctx, s.db, query, s.now(), postSlug)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Post, error) {
	return s.getOne(ctx, s.db, postSelect+` WHERE p.id = $2`, s.now(), id)
}

func (s *Service) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*Post, error) {
	var p Post
	if err := sqlx.GetContext(ctx, q, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		s.logger.Error("error load blog post", zap.Any("key", args[len(args)-1]), zap.Error(err))
		return nil, fmt.Errorf("load post: %w", err)
	}
	posts := []Post{p}
	if err := s.attachTags(ctx, q, posts); err != nil {
		return nil, err
	}
	posts[0].ReadMinutes = readMinutes(posts[0].Content)
	return &posts[0], nil
}

// Related lists other visible posts in the same category, falling back to
// the most recent posts when the category has none.
func (s *Service) Related(ctx context.Context, postSlug string) ([]Post, error) {
	items := []Post{}
	err := sqlx.SelectContext(ctx, s.db, &items, postSelect+` WHERE `+visibleClause+`
		AND p.slug <> $2
		ORDER BY (p.category_id IS NOT DISTINCT FROM (SELECT category_id FROM blog_posts WHERE slug = $2)) DESC,
			p.published_at DESC NULLS LAST, p.id DESC
		LIMIT $3`, s.now(), postSlug, relatedLimit)
	if err != nil {
		s.logger.Error("error list related posts", zap.String("slug", postSlug), zap.Error(err))
		return nil, fmt.Errorf("related posts: %w", err)
	}
	for i := range items {
		items[i].ReadMinutes = readMinutes(items[i].Content)
		items[i].Content = ""
		items[i].Tags = []Tag{}
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, actorID string, in PostInput) (*Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = slug.Make(in.Title)
	}
	if in.Status == "" {
		in.Status = lifecycle.PostStatus.Initial()
	}

	var errs []*apiresp.FieldError
	if in.Title == "" {
		errs = append(errs, apiresp.Field("/title", "is required"))
	}
	if !slug.Valid(in.Slug) {
		errs = append(errs, apiresp.Field("/slug", "must be lowercase letters, digits and dashes"))
	}
	if !lifecycle.PostStatus.Valid(in.Status) {
		errs = append(errs, apiresp.Field("/status", fmt.Sprintf("unknown status %q", in.Status)))
	}
	publishedAt, fe := s.publishTime(in.Status, in.PublishedAt, nil)
	if fe != nil {
		errs = append(errs, fe)
	}
	if err := apiresp.Invalid(errs); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO blog_posts (slug, title, excerpt, content, cover_image, category_id, author_id, status, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8, $9, now(), now())
		RETURNING id
	`, in.Slug, in.Title, in.Excerpt, in.Content, in.CoverImage, in.CategoryID, actorID, in.Status, publishedAt).Scan(&id)
	if err != nil {
		return nil, s.writeFailure("create", 0, err)
	}
	if err := s.setTags(ctx, tx, id, in.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit post: %w", err)
	}

	s.audit.Record(ctx, actorID, "create", entityPost, fmt.Sprint(id), map[string]any{"slug": in.Slug, "status": in.Status})
	if in.Status == StatusPublished {
		s.emitPublished(ctx, id, in.Slug, in.Title)
	}
	return s.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, actorID string, id int64, p PostPatch) (*Post, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.lockPost(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	var errs []*apiresp.FieldError
	if p.Title != nil {
		if t := strings.TrimSpace(*p.Title); t == "" {
			errs = append(errs, apiresp.Field("/title", "is required"))
		} else {
			current.Title = t
		}
	}
	if p.Slug != nil {
		if v := strings.TrimSpace(*p.Slug); !slug.Valid(v) {
			errs = append(errs, apiresp.Field("/slug", "must be lowercase letters, digits and dashes"))
		} else {
			current.Slug = v
		}
	}
	if err := apiresp.Invalid(errs); err != nil {
		return nil, err
	}
	if p.Excerpt != nil {
		current.Excerpt = *p.Excerpt
	}
	if p.Content != nil {
		current.Content = *p.Content
	}
	if p.CoverImage != nil {
		current.CoverImage = *p.CoverImage
	}
	if p.CategoryID != nil {
		current.CategoryID = p.CategoryID
		if *p.CategoryID == 0 {
			current.CategoryID = nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE blog_posts
		SET slug = $2, title = $3, excerpt = $4, content = $5, cover_image = $6, category_id = $7, updated_at = now()
		WHERE id = $1
	`, id, current.Slug, current.Title, current.Excerpt, current.Content, current.CoverImage, current.CategoryID)
	if err != nil {
		return nil, s.writeFailure("update", id, err)
	}
	if p.Tags != nil {
		if err := s.setTags(ctx, tx, id, *p.Tags); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit post: %w", err)
	}
	s.audit.Record(ctx, actorID, "update", entityPost, fmt.Sprint(id), nil)
	return s.GetByID(ctx, id)
}

// SetTags replaces the post's tags in one transaction, creating tags that
// do not exist yet.
func (s *Service) SetTags(ctx context.Context, actorID string, id int64, names []string) (*Post, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.lockPost(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := s.setTags(ctx, tx, id, names); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tags: %w", err)
	}
	s.audit.Record(ctx, actorID, "tags", entityPost, fmt.Sprint(id), map[string]any{"tags": names})
	return s.GetByID(ctx, id)
}

func (s *Service) ChangeStatus(ctx context.Context, actorID string, id int64, in StatusInput) (*Post, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.lockPost(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.PostStatus.Transition(current.Status, in.Status); err != nil {
		return nil, err
	}
	publishedAt, fe := s.publishTime(in.Status, in.PublishedAt, current.PublishedAt)
	if fe != nil {
		return nil, fe
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE blog_posts SET status = $2, published_at = $3, updated_at = now() WHERE id = $1
	`, id, in.Status, publishedAt)
	if err != nil {
		return nil, s.writeFailure("change status", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status: %w", err)
	}

	if current.Status != in.Status {
		s.audit.Record(ctx, actorID, "status", entityPost, fmt.Sprint(id), map[string]any{"from": current.Status, "to": in.Status})
		if in.Status == StatusPublished {
			s.emitPublished(ctx, id, current.Slug, current.Title)
		}
	}
	return s.GetByID(ctx, id)
}

func (s *Service) BulkChangeStatus(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64] {
	return batch.Run(ctx, ids, batch.DefaultLimit, func(ctx context.Context, id int64) error {
		_, err := s.ChangeStatus(ctx, actorID, id, StatusInput{Status: status})
		return err
	})
}

func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return s.writeFailure("delete", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPostNotFound
	}
	s.audit.Record(ctx, actorID, "delete", entityPost, fmt.Sprint(id), nil)
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	items := []Category{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT c.id, c.slug, c.name, c.description,
			(SELECT COUNT(*) FROM blog_posts p WHERE p.category_id = c.id AND `+visibleClause+`) AS post_count
		FROM blog_categories c
		ORDER BY c.name`, s.now())
	if err != nil {
		s.logger.Error("error list blog categories", zap.Error(err))
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

func (s *Service) CreateCategory(ctx context.Context, actorID string, in CategoryInput) (*Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	var errs []*apiresp.FieldError
	if in.Name == "" {
		errs = append(errs, apiresp.Field("/name", "is required"))
	}
	if !slug.Valid(in.Slug) {
		errs = append(errs, apiresp.Field("/slug", "must be lowercase letters, digits and dashes"))
	}
	if err := apiresp.Invalid(errs); err != nil {
		return nil, err
	}

	var c Category
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO blog_categories (slug, name, description) VALUES ($1, $2, $3)
		RETURNING id, slug, name, description, 0 AS post_count
	`, in.Slug, in.Name, in.Description).StructScan(&c)
	if err != nil {
		s.logger.Error("error create blog category", zap.String("slug", in.Slug), zap.Error(err))
		return nil, fmt.Errorf("create category: %w", db.Classify(err))
	}
	s.audit.Record(ctx, actorID, "create", entityCategory, fmt.Sprint(c.ID), map[string]any{"slug": c.Slug})
	return &c, nil
}

func (s *Service) DeleteCategory(ctx context.Context, actorID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blog_categories WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("error delete blog category", zap.Int64("category_id", id), zap.Error(err))
		return fmt.Errorf("delete category: %w", db.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCategoryNotFound
	}
	s.audit.Record(ctx, actorID, "delete", entityCategory, fmt.Sprint(id), nil)
	return nil
}

func (s *Service) ListTags(ctx context.Context) ([]Tag, error) {
	items := []Tag{}
	if err := s.db.SelectContext(ctx, &items, `SELECT id, slug, name FROM blog_tags ORDER BY name`); err != nil {
		s.logger.Error("error list blog tags", zap.Error(err))
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return items, nil
}

type postTag struct {
	PostID int64 `db:"post_id"`
	Tag
}

func (s *Service) attachTags(ctx context.Context, q sqlx.QueryerContext, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, len(posts))
	index := make(map[int64]int, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
		index[posts[i].ID] = i
		posts[i].Tags = []Tag{}
	}
	var rows []postTag
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT pt.post_id, t.id, t.slug, t.name
		FROM blog_post_tags pt
		JOIN blog_tags t ON t.id = pt.tag_id
		WHERE pt.post_id = ANY($1)
		ORDER BY t.name`, pq.Array(ids))
	if err != nil {
		s.logger.Error("error load post tags", zap.Error(err))
		return fmt.Errorf("load tags: %w", err)
	}
	for _, r := range rows {
		i := index[r.PostID]
		posts[i].Tags = append(posts[i].Tags, r.Tag)
	}
	return nil
}

func (s *Service) setTags(ctx context.Context, tx *sqlx.Tx, postID int64, names []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM blog_post_tags WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, t := range normalizeTags(names) {
		var tagID int64
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO blog_tags (slug, name) VALUES ($1, $2)
			ON CONFLICT (slug) DO UPDATE SET name = blog_tags.name
			RETURNING id
		`, t.Slug, t.Name).Scan(&tagID)
		if err != nil {
			s.logger.Error("error upsert tag", zap.String("slug", t.Slug), zap.Error(err))
			return fmt.Errorf("upsert tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blog_post_tags (post_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, postID, tagID); err != nil {
			return fmt.Errorf("link tag: %w", err)
		}
	}
	return nil
}

// lockPost reads the stored (not effective) status under a row lock.
func (s *Service) lockPost(ctx context.Context, tx *sqlx.Tx, id int64) (*Post, error) {
	var p Post
	err := tx.GetContext(ctx, &p, `
		SELECT id, slug, title, excerpt, content, cover_image, category_id, NULL::text AS category_slug,
			NULL::text AS category_name, author_id::text AS author_id, status, published_at, created_at, updated_at
		FROM blog_posts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		s.logger.Error("error lock blog post", zap.Int64("post_id", id), zap.Error(err))
		return nil, fmt.Errorf("lock post: %w", err)
	}
	return &p, nil
}

// publishTime decides published_at for a post entering status. Publishing
// stamps now unless an earlier time is kept; scheduling needs a future
// time; drafts carry none.
func (s *Service) publishTime(status string, requested, existing *time.Time) (*time.Time, *apiresp.FieldError) {
	now := s.now()
	switch status {
	case StatusPublished:
		if requested != nil && !requested.After(now) {
			return requested, nil
		}
		if existing != nil && !existing.After(now) {
			return existing, nil
		}
		return &now, nil
	case StatusScheduled:
		at := requested
		if at == nil {
			at = existing
		}
		if at == nil || !at.After(now) {
			return nil, apiresp.Field("/publishedAt", "scheduled posts need a future publish time")
		}
		return at, nil
	default:
		return nil, nil
	}
}

// postForeignKeys maps the default constraint names of blog_posts onto the
// attribute that carried the dangling reference.
var postForeignKeys = map[string]*apiresp.FieldError{
	"blog_posts_category_id_fkey": {Pointer: "/categoryId", Detail: "unknown category"},
	"blog_posts_author_id_fkey":   {Pointer: "/authorId", Detail: "unknown author"},
}

func (s *Service) writeFailure(op string, id int64, err error) error {
	classified := db.Classify(err)
	if errors.Is(classified, fault.ErrForeignKeyViolation) {
		if fe, ok := postForeignKeys[db.Constraint(err)]; ok {
			return apiresp.Field(fe.Pointer, fe.Detail)
		}
	}
	s.logger.Error("error "+op+" blog post", zap.Int64("post_id", id), zap.Error(err))
	return fmt.Errorf("%s post: %w", op, classified)
}

func (s *Service) emitPublished(ctx context.Context, id int64, postSlug, title string) {
	events.Emit(ctx, s.events, s.logger, events.BlogPostPublished, map[string]any{"id": id, "slug": postSlug, "title": title})
}

func normalizeTags(names []string) []Tag {
	seen := map[string]struct{}{}
	out := make([]Tag, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		sl := slug.Make(n)
		if sl == "" {
			continue
		}
		if _, dup := seen[sl]; dup {
			continue
		}
		seen[sl] = struct{}{}
		out = append(out, Tag{Slug: sl, Name: n})
	}
	return out
}

func readMinutes(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return max(1, (words+wordsPerMinute-1)/wordsPerMinute)
}
