package blog

import (
	"errors"
	"time"

	"bizflow/internal/paginate"
)

var (
	ErrPostNotFound     = errors.New("blog post not found")
	ErrCategoryNotFound = errors.New("blog category not found")
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
)

type Category struct {
	ID          int64  `json:"id" db:"id"`
	Slug        string `json:"slug" db:"slug"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	PostCount   int    `json:"postCount" db:"post_count"`
}

type Tag struct {
	ID   int64  `json:"id" db:"id"`
	Slug string `json:"slug" db:"slug"`
	Name string `json:"name" db:"name"`
}

// Post.Status is the effective status: a scheduled post whose publish
// time has passed reads as published.
type Post struct {
	ID           int64      `json:"id" db:"id"`
	Slug         string     `json:"slug" db:"slug"`
	Title        string     `json:"title" db:"title"`
	Excerpt      string     `json:"excerpt" db:"excerpt"`
	Content      string     `json:"content,omitempty" db:"content"`
	CoverImage   string     `json:"coverImage" db:"cover_image"`
	CategoryID   *int64     `json:"categoryId,omitempty" db:"category_id"`
	CategorySlug *string    `json:"categorySlug,omitempty" db:"category_slug"`
	CategoryName *string    `json:"categoryName,omitempty" db:"category_name"`
	AuthorID     *string    `json:"authorId,omitempty" db:"author_id"`
	Status       string     `json:"status" db:"status"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty" db:"published_at"`
	ReadMinutes  int        `json:"readMinutes" db:"-"`
	Tags         []Tag      `json:"tags" db:"-"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

type Filter struct {
	Category string
	Tag      string
	Search   string
	Status   string
	paginate.Params
}

type PostInput struct {
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	CoverImage  string     `json:"coverImage"`
	CategoryID  *int64     `json:"categoryId"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	Tags        []string   `json:"tags"`
}

// PostPatch updates content fields. Status moves go through ChangeStatus.
type PostPatch struct {
	Title      *string   `json:"title,omitempty"`
	Slug       *string   `json:"slug,omitempty"`
	Excerpt    *string   `json:"excerpt,omitempty"`
	Content    *string   `json:"content,omitempty"`
	CoverImage *string   `json:"coverImage,omitempty"`
	CategoryID *int64    `json:"categoryId,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

type StatusInput struct {
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}
