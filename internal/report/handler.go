package report

import (
	"context"
	"net/http"

	"bizflow/internal/app/apiresp"
)

type dashboardService interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
}

type Handler struct {
	svc dashboardService
}

func NewHandler(svc dashboardService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		apiresp.WriteServiceError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, d)
}
