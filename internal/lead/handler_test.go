package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/batch"
	"bizflow/internal/lifecycle"
	"bizflow/internal/paginate"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLeadService struct {
	createFn            func(ctx context.Context, in CreateInput) (*Lead, error)
	subscribeFn         func(ctx context.Context, email, source string) (*SubscribeResult, error)
	listSubscriptionsFn func(ctx context.Context, p paginate.Params) (*paginate.Page[Subscription], error)
	listFn              func(ctx context.Context, f Filter) (*paginate.Page[Lead], error)
	getFn               func(ctx context.Context, id int64) (*Lead, error)
	updateStatusFn      func(ctx context.Context, actorID string, id int64, status string) (*Lead, error)
	bulkStatusFn        func(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64]
	deleteFn            func(ctx context.Context, actorID string, id int64) error
	exportFn            func(ctx context.Context, f Filter) ([]byte, error)
	importFn            func(ctx context.Context, actorID string, r io.Reader) (*ImportReport, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockLeadService) Create(ctx context.Context, in CreateInput) (*Lead, error) {
	if m.createFn == nil {
		return nil, errNotImplemented
	}
	return m.createFn(ctx, in)
}

func (m *mockLeadService) Subscribe(ctx context.Context, email, source string) (*SubscribeResult, error) {
	if m.subscribeFn == nil {
		return nil, errNotImplemented
	}
	return m.subscribeFn(ctx, email, source)
}

func (m *mockLeadService) ListSubscriptions(ctx context.Context, p paginate.Params) (*paginate.Page[Subscription], error) {
	if m.listSubscriptionsFn == nil {
		return nil, errNotImplemented
	}
	return m.listSubscriptionsFn(ctx, p)
}

func (m *mockLeadService) List(ctx context.Context, f Filter) (*paginate.Page[Lead], error) {
	if m.listFn == nil {
		return nil, errNotImplemented
	}
	return m.listFn(ctx, f)
}

func (m *mockLeadService) Get(ctx context.Context, id int64) (*Lead, error) {
	if m.getFn == nil {
		return nil, errNotImplemented
	}
	return m.getFn(ctx, id)
}

func (m *mockLeadService) UpdateStatus(ctx context.Context, actorID string, id int64, status string) (*Lead, error) {
	if m.updateStatusFn == nil {
		return nil, errNotImplemented
	}
	return m.updateStatusFn(ctx, actorID, id, status)
}

func (m *mockLeadService) BulkUpdateStatus(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64] {
	if m.bulkStatusFn == nil {
		return nil
	}
	return m.bulkStatusFn(ctx, actorID, ids, status)
}

func (m *mockLeadService) Delete(ctx context.Context, actorID string, id int64) error {
	if m.deleteFn == nil {
		return errNotImplemented
	}
	return m.deleteFn(ctx, actorID, id)
}

func (m *mockLeadService) ExportExcel(ctx context.Context, f Filter) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errNotImplemented
	}
	return m.exportFn(ctx, f)
}

func (m *mockLeadService) ImportExcel(ctx context.Context, actorID string, r io.Reader) (*ImportReport, error) {
	if m.importFn == nil {
		return nil, errNotImplemented
	}
	return m.importFn(ctx, actorID, r)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func errorDoc(t *testing.T, rr *httptest.ResponseRecorder) apiresp.Document {
	t.Helper()
	var doc apiresp.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.Errors)
	return doc
}

func TestCreateLeadValidationPointer(t *testing.T) {
	svc := NewService(nil, Deps{})
	h := NewHandler(&mockLeadService{createFn: svc.Create})

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"name":"Rina"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	doc := errorDoc(t, rr)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "/email", doc.Errors[0].Source.Pointer)

	rr = httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"name":"Rina","email":"rina@example.com","budget":1}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/budget", errorDoc(t, rr).Errors[0].Source.Pointer)
}

func TestSubscribeIdempotentStatus(t *testing.T) {
	h := NewHandler(&mockLeadService{subscribeFn: func(_ context.Context, email, _ string) (*SubscribeResult, error) {
		return &SubscribeResult{Subscription: Subscription{ID: 1, Email: email}, AlreadySubscribed: email == "old@example.com"}, nil
	}})

	rr := httptest.NewRecorder()
	h.Subscribe(rr, httptest.NewRequest(http.MethodPost, "/api/newsletter", strings.NewReader(`{"email":"new@example.com"}`)))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.Subscribe(rr, httptest.NewRequest(http.MethodPost, "/api/newsletter", strings.NewReader(`{"email":"old@example.com"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"alreadySubscribed":true`)
}

func TestSubscribeRejectsBadEmail(t *testing.T) {
	_, err := NewService(nil, Deps{}).Subscribe(context.Background(), "nope", "")
	var fe *apiresp.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "/email", fe.Pointer)
}

func TestUpdateStatusErrors(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		err  error
		want int
	}{
		{name: "bad id", id: "x", body: `{"status":"contacted"}`, want: http.StatusNotFound},
		{name: "missing status", id: "7", body: `{}`, want: http.StatusBadRequest},
		{name: "not found", id: "7", body: `{"status":"contacted"}`, err: ErrLeadNotFound, want: http.StatusNotFound},
		{name: "illegal", id: "7", body: `{"status":"converted"}`, err: lifecycle.LeadStatus.Transition("new", "converted"), want: http.StatusConflict},
		{name: "ok", id: "7", body: `{"status":"contacted"}`, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockLeadService{updateStatusFn: func(_ context.Context, _ string, id int64, status string) (*Lead, error) {
				if tc.err != nil {
					return nil, tc.err
				}
				return &Lead{ID: id, Status: status}, nil
			}})
			req := withChiParam(httptest.NewRequest(http.MethodPatch, "/api/admin/leads/"+tc.id+"/status", strings.NewReader(tc.body)), "id", tc.id)
			rr := httptest.NewRecorder()
			h.UpdateStatus(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestBulkUpdateStatusMultiStatus(t *testing.T) {
	h := NewHandler(&mockLeadService{bulkStatusFn: func(_ context.Context, _ string, ids []int64, _ string) []batch.Result[int64] {
		return []batch.Result[int64]{{ID: ids[0], OK: true}, {ID: ids[1], OK: false, Error: ErrLeadNotFound.Error()}}
	}})
	rr := httptest.NewRecorder()
	h.BulkUpdateStatus(rr, httptest.NewRequest(http.MethodPost, "/api/admin/leads/bulk-status", strings.NewReader(`{"ids":[1,2],"status":"lost"}`)))
	assert.Equal(t, http.StatusMultiStatus, rr.Code)
}

func TestExportSetsAttachmentHeaders(t *testing.T) {
	var got Filter
	h := NewHandler(&mockLeadService{exportFn: func(_ context.Context, f Filter) ([]byte, error) {
		got = f
		return writeSheet(nil)
	}})
	rr := httptest.NewRecorder()
	h.Export(rr, httptest.NewRequest(http.MethodGet, "/api/admin/leads/export?status=qualified", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "qualified", got.Status)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment; filename=\"leads-")
	assert.Contains(t, rr.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, rr.Body.Len())
}

func TestImportRequiresFile(t *testing.T) {
	h := NewHandler(&mockLeadService{importFn: func(_ context.Context, _ string, r io.Reader) (*ImportReport, error) {
		_, _, err := readSheet(r)
		if err != nil {
			return nil, err
		}
		return &ImportReport{TotalRows: 1, SuccessRows: 1}, nil
	}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/leads/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.Import(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "/file", errorDoc(t, rr).Errors[0].Source.Pointer)

	body.Reset()
	mw = multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "leads.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(sheetBytes(t, [][]any{{"name", "email"}, {"Rina", "rina@example.com"}}))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/admin/leads/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr = httptest.NewRecorder()
	h.Import(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"successRows":1`)
}

func TestImportStorageFailureIsServerError(t *testing.T) {
	h := NewHandler(&mockLeadService{importFn: func(context.Context, string, io.Reader) (*ImportReport, error) {
		return nil, fmt.Errorf("import row 2: %w", errors.New("connection refused"))
	}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "leads.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(sheetBytes(t, [][]any{{"name", "email"}, {"Rina", "rina@example.com"}}))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/leads/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.Import(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Nil(t, errorDoc(t, rr).Errors[0].Source)
}
