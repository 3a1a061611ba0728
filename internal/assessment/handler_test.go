package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/auth"
	"bizflow/internal/batch"
	"bizflow/internal/formbuilder"
	"bizflow/internal/lifecycle"
	"bizflow/internal/paginate"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFormID = "7d6f4d9e-4a53-4c1f-9d6a-0f3b2d1c8e11"

type mockAssessmentService struct {
	listFormsFn       func(ctx context.Context, f FormFilter) (*paginate.Page[FormSummary], error)
	getFormFn         func(ctx context.Context, id string) (*Form, error)
	createFormFn      func(ctx context.Context, actorID string, in FormInput) (*Form, error)
	replaceFormFn     func(ctx context.Context, actorID, id string, in FormInput) (*Form, error)
	patchFormFn       func(ctx context.Context, actorID, id string, p FormPatch) (*Form, error)
	publishFormFn     func(ctx context.Context, actorID, id string) (*Form, error)
	editFormFn        func(ctx context.Context, actorID, id string, in EditInput) (*EditResult, error)
	deleteFormFn      func(ctx context.Context, actorID, id string) error
	bulkStatusFn      func(ctx context.Context, actorID string, ids []string, status string) []batch.Result[string]
	templateFn        func(ctx context.Context) (*formbuilder.Form, error)
	previewLogicFn    func(ctx context.Context, id string, in PreviewInput) (*PreviewResult, error)
	submitFn          func(ctx context.Context, in SubmissionInput) (*Submission, error)
	listSubmissionsFn func(ctx context.Context, f SubmissionFilter) (*paginate.Page[Submission], error)
	businessFn        func(ctx context.Context, in BusinessAssessmentInput) (*BusinessAssessment, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockAssessmentService) ListForms(ctx context.Context, f FormFilter) (*paginate.Page[FormSummary], error) {
	if m.listFormsFn == nil {
		return nil, errNotImplemented
	}
	return m.listFormsFn(ctx, f)
}

func (m *mockAssessmentService) GetForm(ctx context.Context, id string) (*Form, error) {
	if m.getFormFn == nil {
		return nil, errNotImplemented
	}
	return m.getFormFn(ctx, id)
}

func (m *mockAssessmentService) CreateForm(ctx context.Context, actorID string, in FormInput) (*Form, error) {
	if m.createFormFn == nil {
		return nil, errNotImplemented
	}
	return m.createFormFn(ctx, actorID, in)
}

func (m *mockAssessmentService) ReplaceForm(ctx context.Context, actorID, id string, in FormInput) (*Form, error) {
	if m.replaceFormFn == nil {
		return nil, errNotImplemented
	}
	return m.replaceFormFn(ctx, actorID, id, in)
}

func (m *mockAssessmentService) PatchForm(ctx context.Context, actorID, id string, p FormPatch) (*Form, error) {
	if m.patchFormFn == nil {
		return nil, errNotImplemented
	}
	return m.patchFormFn(ctx, actorID, id, p)
}

func (m *mockAssessmentService) PublishForm(ctx context.Context, actorID, id string) (*Form, error) {
	if m.publishFormFn == nil {
		return nil, errNotImplemented
	}
	return m.publishFormFn(ctx, actorID, id)
}

func (m *mockAssessmentService) EditForm(ctx context.Context, actorID, id string, in EditInput) (*EditResult, error) {
	if m.editFormFn == nil {
		return nil, errNotImplemented
	}
	return m.editFormFn(ctx, actorID, id, in)
}

func (m *mockAssessmentService) DeleteForm(ctx context.Context, actorID, id string) error {
	if m.deleteFormFn == nil {
		return errNotImplemented
	}
	return m.deleteFormFn(ctx, actorID, id)
}

func (m *mockAssessmentService) BulkUpdateStatus(ctx context.Context, actorID string, ids []string, status string) []batch.Result[string] {
	if m.bulkStatusFn == nil {
		return nil
	}
	return m.bulkStatusFn(ctx, actorID, ids, status)
}

func (m *mockAssessmentService) Template(ctx context.Context) (*formbuilder.Form, error) {
	if m.templateFn == nil {
		return nil, errNotImplemented
	}
	return m.templateFn(ctx)
}

func (m *mockAssessmentService) PreviewLogic(ctx context.Context, id string, in PreviewInput) (*PreviewResult, error) {
	if m.previewLogicFn == nil {
		return nil, errNotImplemented
	}
	return m.previewLogicFn(ctx, id, in)
}

func (m *mockAssessmentService) SubmitAssessment(ctx context.Context, in SubmissionInput) (*Submission, error) {
	if m.submitFn == nil {
		return nil, errNotImplemented
	}
	return m.submitFn(ctx, in)
}

func (m *mockAssessmentService) ListSubmissions(ctx context.Context, f SubmissionFilter) (*paginate.Page[Submission], error) {
	if m.listSubmissionsFn == nil {
		return nil, errNotImplemented
	}
	return m.listSubmissionsFn(ctx, f)
}

func (m *mockAssessmentService) CreateBusinessAssessment(ctx context.Context, in BusinessAssessmentInput) (*BusinessAssessment, error) {
	if m.businessFn == nil {
		return nil, errNotImplemented
	}
	return m.businessFn(ctx, in)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asUser(r *http.Request, role string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: "9b2e0c1a-5b7d-4a0e-8f51-1c2d3e4f5a6b", Role: role}))
}

func decodeErrors(t *testing.T, rr *httptest.ResponseRecorder) apiresp.Document {
	t.Helper()
	var doc apiresp.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.Errors)
	return doc
}

func TestGetFormRejectsMalformedID(t *testing.T) {
	called := false
	h := NewHandler(&mockAssessmentService{getFormFn: func(context.Context, string) (*Form, error) {
		called = true
		return nil, nil
	}})

	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/assessments/forms/abc", nil), "id", "abc")
	rr := httptest.NewRecorder()
	h.GetForm(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, called)
}

func TestGetFormHidesDraftsFromPublic(t *testing.T) {
	h := NewHandler(&mockAssessmentService{getFormFn: func(_ context.Context, id string) (*Form, error) {
		return &Form{Form: formbuilder.Form{ID: id, Title: "Draft"}, Status: StatusDraft}, nil
	}})

	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "anonymous", want: http.StatusNotFound},
		{name: "user", role: auth.RoleUser, want: http.StatusNotFound},
		{name: "admin", role: auth.RoleAdmin, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/assessments/forms/"+testFormID, nil), "id", testFormID)
			if tc.role != "" {
				req = asUser(req, tc.role)
			}
			rr := httptest.NewRecorder()
			h.GetForm(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestListFormsPublicSeesPublishedOnly(t *testing.T) {
	var got FormFilter
	h := NewHandler(&mockAssessmentService{listFormsFn: func(_ context.Context, f FormFilter) (*paginate.Page[FormSummary], error) {
		got = f
		return &paginate.Page[FormSummary]{Items: []FormSummary{}, Meta: paginate.NewMeta(0, f.Params)}, nil
	}})

	rr := httptest.NewRecorder()
	h.ListForms(rr, httptest.NewRequest(http.MethodGet, "/api/assessments/forms?status=draft&page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, got.PublishedOnly)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, 2, got.Page)
	assert.Contains(t, rr.Body.String(), `"meta"`)

	rr = httptest.NewRecorder()
	h.ListForms(rr, asUser(httptest.NewRequest(http.MethodGet, "/api/assessments/forms", nil), auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, got.PublishedOnly)
}

func TestCreateFormPassesActorAndValidation(t *testing.T) {
	var actor string
	h := NewHandler(&mockAssessmentService{createFormFn: func(_ context.Context, actorID string, in FormInput) (*Form, error) {
		actor = actorID
		if in.Title == "" {
			return nil, apiresp.Invalid([]*apiresp.FieldError{apiresp.Field("/title", "is required")})
		}
		return &Form{Form: formbuilder.Form{ID: testFormID, Title: in.Title}, Status: StatusDraft}, nil
	}})

	rr := httptest.NewRecorder()
	h.CreateForm(rr, asUser(httptest.NewRequest(http.MethodPost, "/api/assessments/forms", strings.NewReader(`{"title":""}`)), auth.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/title", decodeErrors(t, rr).Errors[0].Source.Pointer)

	rr = httptest.NewRecorder()
	h.CreateForm(rr, asUser(httptest.NewRequest(http.MethodPost, "/api/assessments/forms", strings.NewReader(`{"title":"Readiness"}`)), auth.RoleAdmin))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "9b2e0c1a-5b7d-4a0e-8f51-1c2d3e4f5a6b", actor)

	rr = httptest.NewRecorder()
	h.CreateForm(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/forms", strings.NewReader(`{"title":"x","owner":"me"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/owner", decodeErrors(t, rr).Errors[0].Source.Pointer)
}

func TestPatchFormErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		pointer string
	}{
		{name: "illegal transition", err: lifecycle.FormStatus.Transition(StatusDraft, StatusArchived), want: http.StatusConflict},
		{name: "unknown status", err: lifecycle.FormStatus.Transition(StatusDraft, "deleted"), want: http.StatusBadRequest, pointer: "/status"},
		{name: "stale", err: ErrStaleForm, want: http.StatusConflict},
		{name: "missing", err: ErrFormNotFound, want: http.StatusNotFound},
		{name: "backend", err: errors.New("db down"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockAssessmentService{patchFormFn: func(context.Context, string, string, FormPatch) (*Form, error) {
				return nil, tc.err
			}})
			req := withChiParam(httptest.NewRequest(http.MethodPatch, "/api/assessments/forms/"+testFormID, strings.NewReader(`{"status":"archived"}`)), "id", testFormID)
			rr := httptest.NewRecorder()
			h.PatchForm(rr, req)
			assert.Equal(t, tc.want, rr.Code)
			if tc.pointer != "" {
				assert.Equal(t, tc.pointer, decodeErrors(t, rr).Errors[0].Source.Pointer)
			}
		})
	}
}

func TestBulkUpdateStatus(t *testing.T) {
	h := NewHandler(&mockAssessmentService{bulkStatusFn: func(_ context.Context, _ string, ids []string, status string) []batch.Result[string] {
		out := make([]batch.Result[string], len(ids))
		for i, id := range ids {
			out[i] = batch.Result[string]{ID: id, OK: id != "bad"}
			if id == "bad" {
				out[i].Error = ErrFormNotFound.Error()
			}
		}
		return out
	}})

	rr := httptest.NewRecorder()
	h.BulkUpdateStatus(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/forms/bulk-status", strings.NewReader(`{"ids":["a","bad"],"status":"active"}`)))
	assert.Equal(t, http.StatusMultiStatus, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"assessment form not found"`)

	rr = httptest.NewRecorder()
	h.BulkUpdateStatus(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/forms/bulk-status", strings.NewReader(`{"ids":["a"],"status":"active"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.BulkUpdateStatus(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/forms/bulk-status", strings.NewReader(`{"ids":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, decodeErrors(t, rr).Errors, 2)
}

func TestSubmitErrors(t *testing.T) {
	h := NewHandler(&mockAssessmentService{submitFn: func(_ context.Context, in SubmissionInput) (*Submission, error) {
		switch in.FormID {
		case "draft":
			return nil, ErrFormNotPublished
		default:
			return nil, apiresp.Invalid([]*apiresp.FieldError{apiresp.Field("/answers/company_size", "is required")})
		}
	}})

	rr := httptest.NewRecorder()
	h.Submit(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/submissions", strings.NewReader(`{"answers":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/formId", decodeErrors(t, rr).Errors[0].Source.Pointer)

	rr = httptest.NewRecorder()
	h.Submit(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/submissions", strings.NewReader(`{"formId":"draft","answers":{}}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.Submit(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/submissions", strings.NewReader(`{"formId":"`+testFormID+`","answers":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/answers/company_size", decodeErrors(t, rr).Errors[0].Source.Pointer)
}

func TestScoreWorkedExample(t *testing.T) {
	h := NewHandler(&mockAssessmentService{})
	body := `{
		"automation_experience":"advanced",
		"current_tools":["a","b","c","d","e","f"],
		"pain_points":["1","2","3","4","5"],
		"automation_needs":["1","2","3","4","5"],
		"company_size":"large",
		"document_volume":"high",
		"timeline":"immediate",
		"budget_range":"50k+"
	}`
	rr := httptest.NewRecorder()
	h.Score(rr, httptest.NewRequest(http.MethodPost, "/api/assessments/score", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var doc struct {
		Data struct {
			Score int    `json:"score"`
			Tier  string `json:"tier"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, 90, doc.Data.Score)
	assert.Equal(t, "high", doc.Data.Tier)
}

func TestPreviewLogicRequiresTarget(t *testing.T) {
	h := NewHandler(&mockAssessmentService{previewLogicFn: func(context.Context, string, PreviewInput) (*PreviewResult, error) {
		return &PreviewResult{PreviousQuestions: []formbuilder.Question{}, Dangling: []DanglingReference{}}, nil
	}})

	req := withChiParam(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"sectionId":"s1"}`)), "id", testFormID)
	rr := httptest.NewRecorder()
	h.PreviewLogic(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/questionId", decodeErrors(t, rr).Errors[0].Source.Pointer)

	req = withChiParam(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"sectionId":"s1","questionId":"q1"}`)), "id", testFormID)
	rr = httptest.NewRecorder()
	h.PreviewLogic(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":{"previousQuestions":[],"dangling":[]}}`, rr.Body.String())
}

func TestDeleteFormNoContent(t *testing.T) {
	h := NewHandler(&mockAssessmentService{deleteFormFn: func(context.Context, string, string) error { return nil }})
	req := withChiParam(httptest.NewRequest(http.MethodDelete, "/x", nil), "id", testFormID)
	rr := httptest.NewRecorder()
	h.DeleteForm(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
