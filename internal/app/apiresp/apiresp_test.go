package apiresp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bizflow/internal/fault"
	"bizflow/internal/lifecycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc
}

func TestWriteDataEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/blog/posts", nil)

	WriteData(w, r, http.StatusOK, map[string]string{"slug": "hello"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"slug":"hello"}}`, w.Body.String())
}

func TestWritePageIncludesMeta(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/blog/posts", nil)

	WritePage(w, r, []int{1, 2}, PageMeta{TotalItems: 12, ItemsPerPage: 2, CurrentPage: 3, TotalPages: 6})

	assert.JSONEq(t, `{"data":[1,2],"meta":{"totalItems":12,"itemsPerPage":2,"currentPage":3,"totalPages":6}}`, w.Body.String())
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/assessments/forms/x", nil)

	WriteError(w, r, http.StatusNotFound, "form not found")

	doc := decodeDoc(t, w)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "404", doc.Errors[0].Status)
	assert.Equal(t, "Not Found", doc.Errors[0].Title)
	assert.Equal(t, "form not found", doc.Errors[0].Detail)
	assert.Nil(t, doc.Errors[0].Source)
}

func TestWriteValidationPointers(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/leads", nil)

	WriteValidation(w, r, Invalid([]*FieldError{
		Field("/email", "is required"),
		Field("/name", "is required"),
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	doc := decodeDoc(t, w)
	require.Len(t, doc.Errors, 2)
	assert.Equal(t, "/email", doc.Errors[0].Source.Pointer)
	assert.Equal(t, "/name", doc.Errors[1].Source.Pointer)
	assert.Equal(t, "400", doc.Errors[1].Status)
}

func TestInvalidNilWhenEmpty(t *testing.T) {
	assert.NoError(t, Invalid(nil))
	assert.True(t, IsValidation(Field("/a", "x")))
	assert.False(t, IsValidation(errors.New("x")))
}

type sample struct {
	Title *string `json:"title"`
	Count int     `json:"count"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		pointer string
		wantErr bool
	}{
		{name: "valid", body: `{"title":"a","count":2}`},
		{name: "empty body", body: ``, wantErr: true, pointer: ""},
		{name: "unknown field", body: `{"titel":"a"}`, wantErr: true, pointer: "/titel"},
		{name: "wrong type", body: `{"count":"two"}`, wantErr: true, pointer: "/count"},
		{name: "trailing data", body: `{"count":1}{"count":2}`, wantErr: true, pointer: ""},
		{name: "malformed", body: `{"count":`, wantErr: true, pointer: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst sample
			err := DecodeJSON(r, &dst)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.pointer, fe.Pointer)
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		pointer string
	}{
		{name: "field", err: Field("/title", "is required"), status: http.StatusBadRequest, pointer: "/title"},
		{name: "unknown status", err: lifecycle.LeadStatus.Transition("new", "won"), status: http.StatusBadRequest, pointer: "/status"},
		{name: "illegal transition", err: lifecycle.LeadStatus.Transition("new", "converted"), status: http.StatusConflict},
		{name: "unique", err: fault.NewClientError("leads_email_key", fault.ErrUniqueViolation), status: http.StatusConflict},
		{name: "foreign key", err: fault.NewClientError("fk", fault.ErrForeignKeyViolation), status: http.StatusConflict},
		{name: "not found", err: fault.ErrNotFound, status: http.StatusNotFound},
		{name: "backend", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteServiceError(w, httptest.NewRequest(http.MethodPatch, "/api/admin/leads/1", nil), tc.err)
			assert.Equal(t, tc.status, w.Code)
			doc := decodeDoc(t, w)
			require.NotEmpty(t, doc.Errors)
			if tc.pointer != "" {
				require.NotNil(t, doc.Errors[0].Source)
				assert.Equal(t, tc.pointer, doc.Errors[0].Source.Pointer)
			}
		})
	}

	w := httptest.NewRecorder()
	WriteServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("connection reset"))
	assert.Equal(t, "connection reset", decodeDoc(t, w).Errors[0].Detail)
}
