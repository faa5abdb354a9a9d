// Package storage persists appointments, audit entries, reminder claims and
// reminder runs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dental-recall/internal/appointment"
	"dental-recall/internal/audit"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "memory": process-lifetime store (default)
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN, schema managed by migrations
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is a stored reminder workflow run. Payload holds the JSON
// encoded result.
type RunRecord struct {
	ID            string          `json:"id"`
	AppointmentID string          `json:"appointment_id"`
	ReminderType  string          `json:"reminder_type"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
}

type Store interface {
	AppendAppointment(ctx context.Context, d appointment.Draft) (appointment.Appointment, error)
	ListAppointments(ctx context.Context) ([]appointment.Appointment, error)

	AppendAudit(ctx context.Context, e audit.Entry) error

	// ClaimReminder records key and reports whether this call was the first
	// to do so.
	ClaimReminder(ctx context.Context, key string) (bool, error)

	SaveRun(ctx context.Context, r RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	// ListRuns returns runs newest first. limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}
