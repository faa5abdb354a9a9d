package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"dental-recall/internal/appointment"
	"dental-recall/internal/audit"
	"dental-recall/internal/httpx"
	"dental-recall/internal/reminder"
	"dental-recall/internal/report"
	"dental-recall/internal/suggestion"
)

const LivenessText = "CrewAI Backend is running!"

// Router mounts every route. limit guards the reminder endpoints that start
// a workflow run; nil disables it. /ai/schedule is never limited.
func (a *App) Router(limit func(http.Handler) http.Handler) http.Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(a.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(httpx.AccessLog())
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(LivenessText))
	})

	appointment.RegisterRoutes(r, appointment.NewHandler(appointment.NewService(a.Store, a.Location), a.Log))
	audit.RegisterRoutes(r, audit.NewHandler(audit.NewService(a.Store, a.Log)))
	suggestion.RegisterRoutes(r)
	reminder.RegisterRoutes(r, reminder.NewHandler(a.Reminders, report.NewRenderer(a.Config.PDFFont), a.Log), limit)
	return r
}
