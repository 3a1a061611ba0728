package apiresp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bizflow/internal/fault"
	"bizflow/internal/lifecycle"

	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

type ErrorSource struct {
	Pointer string `json:"pointer"`
}

type ErrorObject struct {
	Status string       `json:"status"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

type PageMeta struct {
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
}

type Document struct {
	Data   interface{}   `json:"data,omitempty"`
	Meta   *PageMeta     `json:"meta,omitempty"`
	Errors []ErrorObject `json:"errors,omitempty"`
}

// FieldError is a validation failure tied to one attribute of the request
// body. Pointer is an RFC 6901 path such as "/sections/0/title".
type FieldError struct {
	Pointer string
	Detail  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pointer, e.Detail)
}

func Field(pointer, detail string) *FieldError {
	return &FieldError{Pointer: pointer, Detail: detail}
}

// ValidationError carries every field failure found in one request.
type ValidationError struct {
	Fields []*FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid returns nil when fields is empty so callers can write
// `if err := apiresp.Invalid(errs); err != nil`.
func Invalid(fields []*FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, Document{Data: data})
}

func WritePage(w http.ResponseWriter, r *http.Request, data interface{}, meta PageMeta) {
	write(w, r, http.StatusOK, Document{Data: data, Meta: &meta})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	write(w, r, status, Document{Errors: []ErrorObject{newErrorObject(status, detail, "")}})
}

// WriteValidation answers 400 with one error object per field.
func WriteValidation(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	var fe *FieldError
	switch {
	case errors.As(err, &ve):
		objs := make([]ErrorObject, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			objs = append(objs, newErrorObject(http.StatusBadRequest, f.Detail, f.Pointer))
		}
		write(w, r, http.StatusBadRequest, Document{Errors: objs})
	case errors.As(err, &fe):
		write(w, r, http.StatusBadRequest, Document{Errors: []ErrorObject{newErrorObject(http.StatusBadRequest, fe.Detail, fe.Pointer)}})
	default:
		WriteError(w, r, http.StatusBadRequest, err.Error())
	}
}

// WriteServiceError answers the failures every service shares. Handlers
// switch on their own sentinels first and fall through to this.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsValidation(err):
		WriteValidation(w, r, err)
	case errors.Is(err, lifecycle.ErrUnknownStatus):
		write(w, r, http.StatusBadRequest, Document{Errors: []ErrorObject{newErrorObject(http.StatusBadRequest, err.Error(), "/status")}})
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, fault.ErrUniqueViolation):
		WriteError(w, r, http.StatusConflict, "a record with the same unique value already exists")
	case errors.Is(err, fault.ErrForeignKeyViolation):
		WriteError(w, r, http.StatusConflict, "record is referenced by other records")
	case errors.Is(err, fault.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		WriteError(w, r, http.StatusInternalServerError, err.Error())
	}
}

// IsValidation reports whether err should be answered with WriteValidation.
func IsValidation(err error) bool {
	var ve *ValidationError
	var fe *FieldError
	return errors.As(err, &ve) || errors.As(err, &fe)
}

// DecodeJSON strictly decodes a single JSON object into dst. Unknown
// attributes and trailing data are rejected as a FieldError on the root.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return Field("", "request body is required")
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return Field("", "cannot read request body")
	}
	if len(raw) > maxBodyBytes {
		return Field("", "request body too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Field("", "request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			return Field(pointerFromPath(typeErr.Field), "must be of type "+typeErr.Type.String())
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return Field("/"+name, "unknown attribute")
		default:
			return Field("", "malformed JSON body")
		}
	}
	if dec.More() {
		return Field("", "request body must contain a single JSON object")
	}
	return nil
}

func pointerFromPath(path string) string {
	if path == "" {
		return ""
	}
	return "/" + strings.ReplaceAll(path, ".", "/")
}

func newErrorObject(status int, detail, pointer string) ErrorObject {
	obj := ErrorObject{
		Status: strconv.Itoa(status),
		Code:   codeFromStatus(status),
		Title:  http.StatusText(status),
		Detail: detail,
	}
	if obj.Detail == "" {
		obj.Detail = obj.Title
	}
	if pointer != "" || status == http.StatusBadRequest {
		obj.Source = &ErrorSource{Pointer: pointer}
	}
	return obj
}

func write(w http.ResponseWriter, r *http.Request, status int, doc Document) {
	if id := middleware.GetReqID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return ""
	}
}
