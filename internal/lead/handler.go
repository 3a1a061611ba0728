package lead

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/auth"
	"bizflow/internal/batch"
	"bizflow/internal/paginate"

	"github.com/go-chi/chi/v5"
)

const maxImportBytes = 16 << 20

type Handler struct {
	svc leadService
}

type leadService interface {
	Create(ctx context.Context, in CreateInput) (*Lead, error)
	Subscribe(ctx context.Context, email, source string) (*SubscribeResult, error)
	ListSubscriptions(ctx context.Context, p paginate.Params) (*paginate.Page[Subscription], error)
	List(ctx context.Context, f Filter) (*paginate.Page[Lead], error)
	Get(ctx context.Context, id int64) (*Lead, error)
	UpdateStatus(ctx context.Context, actorID string, id int64, status string) (*Lead, error)
	BulkUpdateStatus(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64]
	Delete(ctx context.Context, actorID string, id int64) error
	ExportExcel(ctx context.Context, f Filter) ([]byte, error)
	ImportExcel(ctx context.Context, actorID string, r io.Reader) (*ImportReport, error)
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type bulkStatusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

func NewHandler(svc leadService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	lead, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, lead)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	res, err := h.svc.Subscribe(r.Context(), req.Email, req.Source)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadySubscribed {
		status = http.StatusOK
	}
	apiresp.WriteData(w, r, status, res)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListSubscriptions(r.Context(), paginate.FromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), filterFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}
	lead, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, lead)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
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
	lead, err := h.svc.UpdateStatus(r.Context(), actorID(r), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, lead)
}

func (h *Handler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
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
	results := h.svc.BulkUpdateStatus(r.Context(), actorID(r), req.IDs, req.Status)
	apiresp.WriteData(w, r, batch.Status(results), results)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.ExportExcel(r.Context(), filterFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("leads-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		apiresp.WriteValidation(w, r, apiresp.Field("", "invalid multipart form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteValidation(w, r, apiresp.Field("/file", "is required"))
		return
	}
	defer file.Close()

	report, err := h.svc.ImportExcel(r.Context(), actorID(r), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, report)
}

func filterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Params: paginate.FromRequest(r),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrLeadNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteServiceError(w, r, err)
	}
}

func leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrLeadNotFound.Error())
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
