package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"dental-recall/internal/appointment"
	"dental-recall/internal/audit"
)

//go:embed migrations/sqlite.sql
var sqliteMigrations embed.FS

type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info().Str("path", cfg.Path).Msg("sqlite store ready")
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrations.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAppointment(ctx context.Context, d appointment.Draft) (appointment.Appointment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return appointment.Appointment{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO appointments(patient_name, date, time, notes, created_at) VALUES(?,?,?,?,?)`,
		d.PatientName, d.Date, d.Time, d.Notes, time.Now().UnixNano(),
	)
	if err != nil {
		return appointment.Appointment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return appointment.Appointment{}, err
	}
	if err := tx.Commit(); err != nil {
		return appointment.Appointment{}, err
	}
	return d.Record(id), nil
}

func (s *sqliteStore) ListAppointments(ctx context.Context) ([]appointment.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_name, date, time, notes FROM appointments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []appointment.Appointment{}
	for rows.Next() {
		var a appointment.Appointment
		if err := rows.Scan(&a.ID, &a.PatientName, &a.Date, &a.Time, &a.Notes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(id, received_at, remote_addr, payload) VALUES(?,?,?,?)`,
		e.ID, e.ReceivedAt.UnixNano(), nullStr(e.RemoteAddr), string(e.Payload),
	)
	return err
}

func (s *sqliteStore) ClaimReminder(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reminder_claims(key, claimed_at) VALUES(?,?)`,
		key, time.Now().UnixNano(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) SaveRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_runs(id, appointment_id, reminder_type, status, created_at, payload)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload`,
		r.ID, r.AppointmentID, r.ReminderType, r.Status, r.CreatedAt.UnixNano(), string(r.Payload),
	)
	return err
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, appointment_id, reminder_type, status, created_at, payload
		 FROM reminder_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT id, appointment_id, reminder_type, status, created_at, payload
	      FROM reminder_runs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r       RunRecord
		created int64
		payload string
	)
	if err := sc.Scan(&r.ID, &r.AppointmentID, &r.ReminderType, &r.Status, &created, &payload); err != nil {
		return RunRecord{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.Payload = []byte(payload)
	return r, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
