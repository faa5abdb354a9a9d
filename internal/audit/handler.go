package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dental-recall/internal/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Log accepts any JSON document.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	h.svc.Record(r.Context(), r.RemoteAddr, payload)
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "logged"})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/audit", h.Log)
}
