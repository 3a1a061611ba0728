package chatbot

import (
	"context"
	"net/http"
	"strconv"

	"bizflow/internal/app/apiresp"
)

type Handler struct {
	svc chatService
}

type chatService interface {
	Reply(ctx context.Context, sessionID, message string) (Result, error)
	History(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
}

func NewHandler(svc chatService) *Handler {
	return &Handler{svc: svc}
}

type replyRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	result, err := h.svc.Reply(r.Context(), req.SessionID, req.Message)
	if err != nil {
		apiresp.WriteServiceError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, result)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := h.svc.History(r.Context(), q.Get("sessionId"), limit)
	if err != nil {
		apiresp.WriteServiceError(w, r, err)
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, items)
}
