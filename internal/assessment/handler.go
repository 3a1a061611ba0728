package assessment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/auth"
	"bizflow/internal/batch"
	"bizflow/internal/formbuilder"
	"bizflow/internal/paginate"
	"bizflow/internal/scoring"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	svc assessmentService
}

type assessmentService interface {
	ListForms(ctx context.Context, f FormFilter) (*paginate.Page[FormSummary], error)
	GetForm(ctx context.Context, id string) (*Form, error)
	CreateForm(ctx context.Context, actorID string, in FormInput) (*Form, error)
	ReplaceForm(ctx context.Context, actorID, id string, in FormInput) (*Form, error)
	PatchForm(ctx context.Context, actorID, id string, p FormPatch) (*Form, error)
	PublishForm(ctx context.Context, actorID, id string) (*Form, error)
	EditForm(ctx context.Context, actorID, id string, in EditInput) (*EditResult, error)
	DeleteForm(ctx context.Context, actorID, id string) error
	BulkUpdateStatus(ctx context.Context, actorID string, ids []string, status string) []batch.Result[string]
	Template(ctx context.Context) (*formbuilder.Form, error)
	PreviewLogic(ctx context.Context, id string, in PreviewInput) (*PreviewResult, error)
	SubmitAssessment(ctx context.Context, in SubmissionInput) (*Submission, error)
	ListSubmissions(ctx context.Context, f SubmissionFilter) (*paginate.Page[Submission], error)
	CreateBusinessAssessment(ctx context.Context, in BusinessAssessmentInput) (*BusinessAssessment, error)
}

type bulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

type scoreResponse struct {
	scoring.Result
	Tier string `json:"tier"`
}

func NewHandler(svc assessmentService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := FormFilter{
		Status:        strings.TrimSpace(q.Get("status")),
		Search:        strings.TrimSpace(q.Get("search")),
		PublishedOnly: !isAdmin(r) || q.Get("published") == "true",
		Params:        paginate.FromRequest(r),
	}
	page, err := h.svc.ListForms(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	form, err := h.svc.GetForm(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !form.Published && !isAdmin(r) {
		writeError(w, r, ErrFormNotFound)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, form)
}

func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	var in FormInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	form, err := h.svc.CreateForm(r.Context(), actorID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, form)
}

func (h *Handler) ReplaceForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	var in FormInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	form, err := h.svc.ReplaceForm(r.Context(), actorID(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, form)
}

func (h *Handler) PatchForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	var p FormPatch
	if err := apiresp.DecodeJSON(r, &p); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	form, err := h.svc.PatchForm(r.Context(), actorID(r), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, form)
}

func (h *Handler) PublishForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	form, err := h.svc.PublishForm(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, form)
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	var in EditInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	if len(in.Commands) == 0 {
		apiresp.WriteValidation(w, r, apiresp.Field("/commands", "at least one command is required"))
		return
	}
	res, err := h.svc.EditForm(r.Context(), actorID(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, res)
}

func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteForm(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.Template(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, form)
}

func (h *Handler) PreviewLogic(w http.ResponseWriter, r *http.Request) {
	id, ok := formID(w, r)
	if !ok {
		return
	}
	var in PreviewInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	var errs []*apiresp.FieldError
	if strings.TrimSpace(in.SectionID) == "" {
		errs = append(errs, apiresp.Field("/sectionId", "is required"))
	}
	if strings.TrimSpace(in.QuestionID) == "" {
		errs = append(errs, apiresp.Field("/questionId", "is required"))
	}
	if err := apiresp.Invalid(errs); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	res, err := h.svc.PreviewLogic(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, res)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var in SubmissionInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	if strings.TrimSpace(in.FormID) == "" {
		apiresp.WriteValidation(w, r, apiresp.Field("/formId", "is required"))
		return
	}
	sub, err := h.svc.SubmitAssessment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, sub)
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListSubmissions(r.Context(), SubmissionFilter{
		FormID: strings.TrimSpace(r.URL.Query().Get("formId")),
		Params: paginate.FromRequest(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}

// Score is a pure preview of the readiness score; nothing is stored.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var in scoring.Answers
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	res := scoring.Breakdown(in)
	apiresp.WriteData(w, r, http.StatusOK, scoreResponse{Result: res, Tier: scoring.Tier(res.Score)})
}

func (h *Handler) CreateBusinessAssessment(w http.ResponseWriter, r *http.Request) {
	var in BusinessAssessmentInput
	if err := apiresp.DecodeJSON(r, &in); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	out, err := h.svc.CreateBusinessAssessment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusCreated, out)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrFormNotFound), errors.Is(err, ErrFormNotPublished), errors.Is(err, ErrSubmissionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStaleForm):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		apiresp.WriteServiceError(w, r, err)
	}
}

func formID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrFormNotFound.Error())
		return "", false
	}
	return id, true
}

func actorID(r *http.Request) string {
	if u, ok := auth.CurrentUser(r.Context()); ok {
		return u.ID
	}
	return ""
}

func isAdmin(r *http.Request) bool {
	u, _ := auth.CurrentUser(r.Context())
	return u.IsAdmin()
}
