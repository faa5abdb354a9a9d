package storage

import (
	"context"
	"sync"

	"dental-recall/internal/appointment"
	"dental-recall/internal/audit"
)

// Memory keeps everything in process memory. One mutex guards id
// assignment and every append.
type Memory struct {
	mu           sync.Mutex
	appointments []appointment.Appointment
	audit        []audit.Entry
	claims       map[string]struct{}
	runs         []RunRecord
}

func NewMemory() *Memory {
	return &Memory{claims: make(map[string]struct{})}
}

func (m *Memory) AppendAppointment(_ context.Context, d appointment.Draft) (appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := d.Record(int64(len(m.appointments) + 1))
	m.appointments = append(m.appointments, a)
	return a, nil
}

func (m *Memory) ListAppointments(context.Context) ([]appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]appointment.Appointment, len(m.appointments))
	copy(out, m.appointments)
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

// AuditEntries returns a copy of the recorded audit entries.
func (m *Memory) AuditEntries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Entry, len(m.audit))
	copy(out, m.audit)
	return out
}

func (m *Memory) ClaimReminder(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = struct{}{}
	return true, nil
}

func (m *Memory) SaveRun(_ context.Context, r RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == r.ID {
			m.runs[i] = r
			return nil
		}
	}
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return RunRecord{}, ErrNotFound
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, 0, n)
	for i := len(m.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
