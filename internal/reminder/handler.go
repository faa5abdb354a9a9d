package reminder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"dental-recall/internal/crew"
	"dental-recall/internal/httpx"
	"dental-recall/internal/report"
	"dental-recall/internal/storage"
)

const maxBody = 1 << 20

type Handler struct {
	svc      *Service
	renderer *report.Renderer
	log      zerolog.Logger
	now      func() time.Time
}

func NewHandler(svc *Service, renderer *report.Renderer, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		renderer: renderer,
		log:      log.With().Str("component", "reminder").Logger(),
		now:      time.Now,
	}
}

type runSummary struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	ReminderType  string    `json:"reminder_type"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type failedRun struct {
	Error  string       `json:"error"`
	Result *crew.Result `json:"result,omitempty"`
}

func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	in, err := crew.InputsFromJSON(body, h.now())
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	res, err := h.svc.Trigger(r.Context(), in)
	h.respond(w, res, err)
}

func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Replay(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("from"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "run not found")
		return
	}
	h.respond(w, res, err)
}

func (h *Handler) respond(w http.ResponseWriter, res *crew.Result, err error) {
	if err == nil {
		httpx.JSON(w, http.StatusOK, res)
		return
	}
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("reminder run failed")
		httpx.Error(w, status, "internal error")
		return
	}
	httpx.JSON(w, status, failedRun{Error: err.Error(), Result: res})
}

// StatusFor maps a workflow error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, crew.ErrDeliveryBlocked):
		return http.StatusConflict
	case errors.Is(err, crew.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, crew.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list runs failed")
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]runSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, runSummary{
			ID:            rec.ID,
			AppointmentID: rec.AppointmentID,
			ReminderType:  rec.ReminderType,
			Status:        rec.Status,
			CreatedAt:     rec.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) (*crew.Result, bool) {
	res, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("get run failed")
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return res, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.get(w, r); ok {
		httpx.JSON(w, http.StatusOK, res)
	}
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	res, ok := h.get(w, r)
	if !ok {
		return
	}
	pdf, err := h.renderer.Render(res)
	if errors.Is(err, report.ErrNoFont) {
		h.log.Warn().Err(err).Msg("pdf rendering unavailable")
		httpx.Error(w, http.StatusServiceUnavailable, "pdf rendering unavailable")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("render pdf failed")
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="reminder_`+res.RunID+`.pdf"`)
	_, _ = w.Write(pdf)
}

// RegisterRoutes mounts the reminder routes. limit guards the routes that
// start a workflow run and may be nil.
func RegisterRoutes(r chi.Router, h *Handler, limit func(http.Handler) http.Handler) {
	r.Route("/reminders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/report.pdf", h.PDF)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/", h.Trigger)
			r.Post("/{id}/replay", h.Replay)
		})
	})
}
