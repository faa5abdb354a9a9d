package appointment

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"dental-recall/internal/httpx"
)

const (
	msgMissingFields = "Missing required fields"
	msgInvalidSlot   = "Invalid date or time format"
	msgInvalidBody   = "Invalid JSON body"
)

var requiredFields = []string{"patient_name", "date", "time"}

type Handler struct {
	svc Service
	log zerolog.Logger
}

func NewHandler(svc Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log.With().Str("component", "schedule").Logger()}
}

type scheduledResponse struct {
	Status      string       `json:"status"`
	Appointment *Appointment `json:"appointment"`
}

type listResponse struct {
	Appointments []Appointment `json:"appointments"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		httpx.Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	for _, k := range requiredFields {
		if _, ok := body[k]; !ok {
			httpx.Error(w, http.StatusBadRequest, msgMissingFields)
			return
		}
	}

	name := nameField(body["patient_name"])
	date, okDate := stringField(body, "date")
	clock, okTime := stringField(body, "time")
	if !okDate || !okTime {
		httpx.Error(w, http.StatusBadRequest, msgInvalidSlot)
		return
	}
	notes, _ := stringField(body, "notes")

	a, err := h.svc.Schedule(r.Context(), Draft{
		PatientName: name,
		Date:        date,
		Time:        clock,
		Notes:       notes,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidSlot) {
			httpx.Error(w, http.StatusBadRequest, msgInvalidSlot)
			return
		}
		h.log.Error().Err(err).Msg("schedule failed")
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.Info().Int64("id", a.ID).Str("date", a.Date).Str("time", a.Time).Msg("appointment scheduled")
	httpx.JSON(w, http.StatusCreated, scheduledResponse{Status: "scheduled", Appointment: a})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list failed")
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Appointments: list})
}

// stringField reports false when key is absent, null or not a JSON string.
func stringField(body map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := body[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// nameField keeps any present patient_name: strings as given, null as "",
// other JSON values as their compact text.
func nameField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/schedule", h.Create)
	r.Get("/schedule", h.List)
}
