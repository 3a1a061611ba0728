package blog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/auth"
	"bizflow/internal/batch"
	"bizflow/internal/paginate"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc blogService
}

type blogService interface {
	ListPublished(ctx context.Context, f Filter) (*paginate.Page[Post], error)
	ListAll(ctx context.Context, f Filter) (*paginate.Page[Post], error)
	GetBySlug(ctx context.Context, slug string, includeDrafts bool) (*Post, error)
	GetByID(ctx context.Context, id int64) (*Post, error)
	Related(ctx context.Context, slug string) ([]Post, error)
	Create(ctx context.Context, actorID string, in PostInput) (*Post, error)
	Update(ctx context.Context, actorID string, id int64, p PostPatch) (*Post, error)
	SetTags(ctx context.Context, actorID string, id int64, names []string) (*Post, error)
	ChangeStatus(ctx context.Context, actorID string, id int64, in StatusInput) (*Post, error)
	BulkChangeStatus(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64]
	Delete(ctx context.Context, actorID string, id int64) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, actorID string, in CategoryInput) (*Category, error)
	DeleteCategory(ctx context.Context, actorID string, id int64) error
	ListTags(ctx context.Context) ([]Tag, error)
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

type bulkStatusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

func NewHandler(svc blogService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListPublished(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListPublished(r.Context(), filterFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListAll(r.Context(), filterFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

// GetBySlug serves drafts only to admins asking for a preview.
func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r.Context())
	preview := u.IsAdmin() && r.URL.Query().Get("preview") == "true"
	post, err := h.svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"), preview)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, post)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrPostNotFound)
	if !ok {
		return
	}
	post, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, post)
}

func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.Related(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, posts)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in PostInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	post, err := h.svc.Create(r.Context(), actorID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, post)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrPostNotFound)
	if !ok {
		return
	}
	var p PostPatch
	if err := apiresp.DecodeJSON(r, &p); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	post, err := h.svc.Update(r.Context(), actorID(r), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, post)
}

func (h *Handler) SetTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrPostNotFound)
	if !ok {
		return
	}
	var req tagsRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	post, err := h.svc.SetTags(r.Context(), actorID(r), id, req.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, post)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrPostNotFound)
	if !ok {
		return
	}
	var in StatusInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	if strings.TrimSpace(in.Status) == "" {
		apiresp.WriteValidation(w, r, apiresp.Field("/status", "is required"))
		return
	}
	post, err := h.svc.ChangeStatus(r.Context(), actorID(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, post)
}

func (h *Handler) BulkChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	var errs []*apiresp.FieldError
	if len(req.IDs) == 0 {
		errs = append(errs, apiresp.Field("/ids", "at least one id is required"))
	}
	if strings.TrimSpace(req.Status) == "" {
		errs = append(errs, apiresp.Field("/status", "is required"))
	}
	if err := apiresp.Invalid(errs); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	results := h.svc.BulkChangeStatus(r.Context(), actorID(r), req.IDs, req.Status)
	apiresp.WriteData(w, r, batch.Status(results), results)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrPostNotFound)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, items)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), actorID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, ErrCategoryNotFound)
	if !ok {
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListTags(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, items)
}

func filterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Category: strings.TrimSpace(q.Get("category")),
		Tag:      strings.TrimSpace(q.Get("tag")),
		Search:   strings.TrimSpace(q.Get("search")),
		Status:   strings.TrimSpace(q.Get("status")),
		Params:   paginate.FromRequest(r),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPostNotFound), errors.Is(err, ErrCategoryNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteServiceError(w, r, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, notFound error) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, notFound.Error())
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) string {
	if u, ok := auth.CurrentUser(r.Context()); ok {
		return u.ID
	}
	return ""
}
