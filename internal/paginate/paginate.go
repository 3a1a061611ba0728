package paginate

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"bizflow/internal/app/apiresp"

	"github.com/jmoiron/sqlx"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type Params struct {
	Page    int
	PerPage int
}

func (p Params) normalized() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Params) Offset() int {
	n := p.normalized()
	return (n.Page - 1) * n.PerPage
}

// FromRequest reads ?page= and ?perPage= (or ?limit=) with defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{
		Page:    atoi(q.Get("page")),
		PerPage: atoi(q.Get("perPage")),
	}
	if p.PerPage == 0 {
		p.PerPage = atoi(q.Get("limit"))
	}
	return p.normalized()
}

type Page[T any] struct {
	Items []T
	Meta  apiresp.PageMeta
}

func NewMeta(totalItems int, p Params) apiresp.PageMeta {
	p = p.normalized()
	totalPages := (totalItems + p.PerPage - 1) / p.PerPage
	return apiresp.PageMeta{
		TotalItems:   totalItems,
		ItemsPerPage: p.PerPage,
		CurrentPage:  p.Page,
		TotalPages:   totalPages,
	}
}

// Query counts the rows of query through a subquery, then selects one page
// of it. query must use $n placeholders numbered from 1 for args.
func Query[T any](ctx context.Context, db sqlx.QueryerContext, query string, args []any, p Params) (*Page[T], error) {
	p = p.normalized()

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS total_count", query)
	if err := sqlx.GetContext(ctx, db, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	pageQuery := fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, len(args)+1, len(args)+2)
	pageArgs := append(append([]any{}, args...), p.PerPage, p.Offset())

	items := []T{}
	if err := sqlx.SelectContext(ctx, db, &items, pageQuery, pageArgs...); err != nil {
		return nil, fmt.Errorf("select page: %w", err)
	}

	return &Page[T]{Items: items, Meta: NewMeta(total, p)}, nil
}

func atoi(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}
