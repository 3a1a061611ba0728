package audit

import (
	"context"
	"net/http"
	"strings"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/paginate"
)

type lister interface {
	List(ctx context.Context, f Filter) (*paginate.Page[Entry], error)
}

type Handler struct {
	log lister
}

func NewHandler(log lister) *Handler {
	return &Handler{log: log}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.log.List(r.Context(), Filter{
		EntityType: strings.TrimSpace(q.Get("entityType")),
		EntityID:   strings.TrimSpace(q.Get("entityId")),
		Params:     paginate.FromRequest(r),
	})
	if err != nil {
		apiresp.WriteServiceError(w, r, err)
		return
	}
	apiresp.WritePage(w, r, page.Items, page.Meta)
}
