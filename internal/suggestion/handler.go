package suggestion

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dental-recall/internal/httpx"
)

type request struct {
	PatientName *string         `json:"patient_name"`
	History     json.RawMessage `json:"history"`
}

type response struct {
	Suggestion Suggestion `json:"ai_suggestion"`
}

func Schedule(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	name := DefaultPatientName
	if req.PatientName != nil {
		name = *req.PatientName
	}
	httpx.JSON(w, http.StatusOK, response{Suggestion: Suggest(name, req.History)})
}

func RegisterRoutes(r chi.Router) {
	r.Post("/ai/schedule", Schedule)
}
