package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"dental-recall/internal/appointment"
	"dental-recall/internal/audit"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type postgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func openPostgres(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if err := migratePostgres(cfg.DSN, log); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info().Msg("postgres store ready")
	return &postgresStore{pool: pool, log: log}, nil
}

func migratePostgres(dsn string, log zerolog.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	drv, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	log.Info().Msg("migrations applied")
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) AppendAppointment(ctx context.Context, d appointment.Draft) (appointment.Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return appointment.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO appointments (patient_name, date, time, notes) VALUES ($1,$2,$3,$4) RETURNING id`,
		d.PatientName, d.Date, d.Time, d.Notes,
	).Scan(&id)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return appointment.Appointment{}, err
	}
	return d.Record(id), nil
}

func (s *postgresStore) ListAppointments(ctx context.Context) ([]appointment.Appointment, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *postgresStore) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, received_at, remote_addr, payload) VALUES ($1,$2,$3,$4::jsonb)`,
		e.ID, e.ReceivedAt, nullStr(e.RemoteAddr), string(e.Payload),
	)
	return err
}

func (s *postgresStore) ClaimReminder(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO reminder_claims (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *postgresStore) SaveRun(ctx context.Context, r RunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reminder_runs (id, appointment_id, reminder_type, status, created_at, payload)
		 VALUES ($1,$2,$3,$4,$5,$6::jsonb)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`,
		r.ID, r.AppointmentID, r.ReminderType, r.Status, r.CreatedAt, string(r.Payload),
	)
	return err
}

func (s *postgresStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var r RunRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, appointment_id, reminder_type, status, created_at, payload
		 FROM reminder_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.AppointmentID, &r.ReminderType, &r.Status, &r.CreatedAt, &r.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *postgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT id, appointment_id, reminder_type, status, created_at, payload
	      FROM reminder_runs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.AppointmentID, &r.ReminderType, &r.Status, &r.CreatedAt, &r.Payload); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
