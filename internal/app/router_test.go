package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dental-recall/internal/config"
	"dental-recall/internal/httpx"
)

func newTestRouter(t *testing.T, limit func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Crew.ReportDir = t.TempDir()
	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a.Router(limit)
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := serve(h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LivenessText, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRoutesMounted(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := serve(h, http.MethodPost, "/schedule", `{"patient_name":"Bob","date":"2025-11-20","time":"10:30"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(h, http.MethodGet, "/schedule", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Bob"`)

	assert.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/audit", `{"a":1}`).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/ai/schedule", `{}`).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/reminders", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/nope", "").Code)
}

func TestOnlyReminderRunsAreRateLimited(t *testing.T) {
	rl := httpx.NewRateLimiter(0.001, 1)
	h := newTestRouter(t, rl.Middleware)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/ai/schedule", `{}`).Code)
	}
	body := `{"message_content":"See you soon.","patient_id":"P-1"}`
	assert.Equal(t, http.StatusUnprocessableEntity, serve(h, http.MethodPost, "/reminders", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "/reminders", body).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/reminders", "").Code)
}
