package casestudy

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
	svc caseStudyService
}

type caseStudyService interface {
	ListPublished(ctx context.Context, f Filter) (*paginate.Page[CaseStudy], error)
	ListAll(ctx context.Context, f Filter) (*paginate.Page[CaseStudy], error)
	ListIndustries(ctx context.Context) ([]string, error)
	GetBySlug(ctx context.Context, slug string, includeDrafts bool) (*CaseStudy, error)
	Get(ctx context.Context, id int64) (*CaseStudy, error)
	Create(ctx context.Context, actorID string, in Input) (*CaseStudy, error)
	Update(ctx context.Context, actorID string, id int64, p Patch) (*CaseStudy, error)
	ChangeStatus(ctx context.Context, actorID string, id int64, status string) (*CaseStudy, error)
	BulkPublish(ctx context.Context, actorID string, ids []int64) []batch.Result[int64]
	Delete(ctx context.Context, actorID string, id int64) error
}

type statusRequest struct {
	Status string `json:"status"`
}

type bulkPublishRequest struct {
	IDs []int64 `json:"ids"`
}

func NewHandler(svc caseStudyService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListPublished(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Industry: strings.TrimSpace(q.Get("industry")),
		Params:   paginate.FromRequest(r),
	}
	if v := strings.TrimSpace(q.Get("featured")); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "featured must be true or false")
			return
		}
		f.Featured = &featured
	}
	page, err := h.svc.ListPublished(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.ListAll(r.Context(), Filter{
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Params: paginate.FromRequest(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) ListIndustries(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListIndustries(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, items)
}

func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r.Context())
	preview := u.IsAdmin() && r.URL.Query().Get("preview") == "true"
	c, err := h.svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"), preview)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, c)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := caseStudyID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	c, err := h.svc.Create(r.Context(), actorID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := caseStudyID(w, r)
	if !ok {
		return
	}
	var p Patch
	if err := apiresp.DecodeJSON(r, &p); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	c, err := h.svc.Update(r.Context(), actorID(r), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, c)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caseStudyID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		apiresp.WriteValidation(w, r, apiresp.Field("/status", "is required"))
		return
	}
	c, err := h.svc.ChangeStatus(r.Context(), actorID(r), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, c)
}

func (h *Handler) BulkPublish(w http.ResponseWriter, r *http.Request) {
	var req bulkPublishRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		apiresp.WriteValidation(w, r, apiresp.Field("/ids", "at least one id is required"))
		return
	}
	results := h.svc.BulkPublish(r.Context(), actorID(r), req.IDs)
	apiresp.WriteData(w, r, batch.Status(results), results)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caseStudyID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCaseStudyNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteServiceError(w, r, err)
	}
}

func caseStudyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrCaseStudyNotFound.Error())
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
