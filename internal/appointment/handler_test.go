package appointment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	list []Appointment
}

func (m *memRepo) AppendAppointment(_ context.Context, d Draft) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := d.Record(int64(len(m.list) + 1))
	m.list = append(m.list, a)
	return a, nil
}

func (m *memRepo) ListAppointments(context.Context) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Appointment(nil), m.list...), nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.list)
}

func newRouter(repo Repository) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(NewService(repo, nil), zerolog.Nop()))
	return r
}

func do(h http.Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/schedule", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestScheduleScenario(t *testing.T) {
	h := newRouter(&memRepo{})
	body := `{"patient_name":"Bob","date":"2025-12-01","time":"09:30"}`

	rec := do(h, http.MethodPost, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[scheduledResponse](t, rec)
	assert.Equal(t, "scheduled", first.Status)
	assert.Equal(t, &Appointment{ID: 1, PatientName: "Bob", Date: "2025-12-01", Time: "09:30", Notes: ""}, first.Appointment)
	assert.Contains(t, rec.Body.String(), `"notes":""`)

	rec = do(h, http.MethodPost, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(2), decode[scheduledResponse](t, rec).Appointment.ID)

	rec = do(h, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec).Appointments
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)
}

func TestScheduleKeepsNotesAndText(t *testing.T) {
	h := newRouter(&memRepo{})
	rec := do(h, http.MethodPost, `{"patient_name":"Ann","date":"2025-1-5","time":"9:05","notes":"cleaning"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[scheduledResponse](t, rec).Appointment
	assert.Equal(t, "2025-1-5", a.Date)
	assert.Equal(t, "9:05", a.Time)
	assert.Equal(t, "cleaning", a.Notes)
}

func TestScheduleRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing name", `{"date":"2025-12-01","time":"09:30"}`, msgMissingFields},
		{"missing date", `{"patient_name":"Bob","time":"09:30"}`, msgMissingFields},
		{"missing time", `{"patient_name":"Bob","date":"2025-12-01"}`, msgMissingFields},
		{"bad date", `{"patient_name":"Bob","date":"2025-13-01","time":"09:30"}`, msgInvalidSlot},
		{"bad day", `{"patient_name":"Bob","date":"2025-02-30","time":"09:30"}`, msgInvalidSlot},
		{"bad time", `{"patient_name":"Bob","date":"2025-12-01","time":"25:00"}`, msgInvalidSlot},
		{"words", `{"patient_name":"Bob","date":"tomorrow","time":"noon"}`, msgInvalidSlot},
		{"year zero", `{"patient_name":"Bob","date":"0000-01-01","time":"09:30"}`, msgInvalidSlot},
		{"numeric date", `{"patient_name":"Bob","date":20251201,"time":"09:30"}`, msgInvalidSlot},
		{"array body", `[1,2]`, msgInvalidBody},
		{"null body", `null`, msgInvalidBody},
		{"malformed", `{"patient_name":`, msgInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{}
			rec := do(newRouter(repo), http.MethodPost, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decode[map[string]string](t, rec)["error"])
			assert.Zero(t, repo.count())
		})
	}
}

func TestScheduleAcceptsNonStringName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"null", `null`, ""},
		{"number", `42`, "42"},
		{"object", `{ "first": "Bob" }`, `{"first":"Bob"}`},
		{"empty string", `""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memRepo{}
			rec := do(newRouter(repo), http.MethodPost, `{"patient_name":`+tt.raw+`,"date":"2025-12-01","time":"09:30"}`)
			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, tt.want, decode[scheduledResponse](t, rec).Appointment.PatientName)
			assert.Equal(t, 1, repo.count())
		})
	}
}

func TestEmptyList(t *testing.T) {
	rec := do(newRouter(&memRepo{}), http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"appointments":[]}`, rec.Body.String())
}

func TestConcurrentScheduleAssignsDistinctIDs(t *testing.T) {
	repo := &memRepo{}
	h := newRouter(repo)
	const n = 20

	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := do(h, http.MethodPost, `{"patient_name":"P","date":"2025-12-01","time":"09:30"}`)
			var res scheduledResponse
			if json.Unmarshal(rec.Body.Bytes(), &res) == nil && res.Appointment != nil {
				ids[i] = res.Appointment.ID
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestParseSlot(t *testing.T) {
	ts, err := ParseSlot("2025-12-01", "09:30", nil)
	require.NoError(t, err)
	assert.Equal(t, 9, ts.Hour())
	assert.Equal(t, 30, ts.Minute())

	_, err = ParseSlot("2025-12-01", "", nil)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = ParseSlot("0000-12-01", "09:30", nil)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = ParseSlot("0001-01-01", "00:00", nil)
	assert.NoError(t, err)
}
