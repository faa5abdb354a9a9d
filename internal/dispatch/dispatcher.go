// Package dispatch sweeps stored appointments on a cron schedule and runs
// the reminder workflow for every reminder that has come due.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dental-recall/internal/appointment"
	"dental-recall/internal/crew"
)

const DefaultSchedule = "@every 5m"

// Store is what the dispatcher needs from storage.
type Store interface {
	ListAppointments(ctx context.Context) ([]appointment.Appointment, error)
	ClaimReminder(ctx context.Context, key string) (bool, error)
}

type Trigger interface {
	Trigger(ctx context.Context, in crew.Inputs) (*crew.Result, error)
}

type Config struct {
	Schedule string
	Location *time.Location
	// Business hours in minutes after midnight; sweeps outside them do
	// nothing so reminders are never claimed at night.
	BusinessStart int
	BusinessEnd   int
}

type Dispatcher struct {
	cfg     Config
	store   Store
	trigger Trigger
	log     zerolog.Logger
	now     func() time.Time
	parser  cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	sweepMu sync.Mutex
}

func New(cfg Config, store Store, trigger Trigger, log zerolog.Logger) *Dispatcher {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BusinessEnd == 0 {
		cfg.BusinessStart, cfg.BusinessEnd = 0, 24*60
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		trigger: trigger,
		log:     log.With().Str("component", "dispatch").Logger(),
		now:     time.Now,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return errors.New("dispatcher already started")
	}
	c := cron.New(cron.WithParser(d.parser), cron.WithLocation(d.cfg.Location))
	_, err := c.AddFunc(d.cfg.Schedule, func() {
		n, err := d.Sweep(ctx)
		if err != nil {
			d.log.Error().Err(err).Msg("sweep failed")
			return
		}
		d.log.Debug().Int("triggered", n).Msg("sweep done")
	})
	if err != nil {
		return fmt.Errorf("dispatch schedule %q: %w", d.cfg.Schedule, err)
	}
	d.c = c
	c.Start()
	d.log.Info().Str("schedule", d.cfg.Schedule).Str("tz", d.cfg.Location.String()).Msg("dispatcher started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep or ctx.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	d.log.Info().Msg("dispatcher stopped")
}

// Run starts the dispatcher and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.Stop(stopCtx)
	return nil
}

type due struct {
	appt  appointment.Appointment
	start time.Time
	kind  string
}

// Sweep triggers every due reminder not yet claimed and returns how many
// runs it started. Stored appointments carry no phone number, so a swept
// reminder is checked, formatted and recorded as a run that ends skipped;
// it does not send an SMS. Sending needs a trigger with patient_phone set,
// such as POST /reminders.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()

	now := d.now().In(d.cfg.Location)
	if m := now.Hour()*60 + now.Minute(); m < d.cfg.BusinessStart || m >= d.cfg.BusinessEnd {
		d.log.Debug().Msg("outside business hours, sweep skipped")
		return 0, nil
	}

	appts, err := d.store.ListAppointments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	var pending []due
	for _, a := range appts {
		start, err := a.Start(d.cfg.Location)
		if err != nil {
			d.log.Warn().Int64("id", a.ID).Msg("appointment has no valid start time")
			continue
		}
		if kind, ok := Window(start, now); ok {
			pending = append(pending, due{appt: a, start: start, kind: kind})
		}
	}

	n := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		key := ClaimKey(p.appt.ID, p.kind)
		ok, err := d.store.ClaimReminder(ctx, key)
		if err != nil {
			d.log.Error().Err(err).Str("key", key).Msg("claim failed")
			continue
		}
		if !ok {
			continue
		}
		n++
		res, err := d.trigger.Trigger(ctx, Inputs(p.appt, p.start, p.kind, now))
		ev := d.log.Info()
		if err != nil {
			ev = d.log.Warn().Err(err)
		}
		if res != nil {
			ev = ev.Str("run_id", res.RunID).Str("status", string(res.Status))
		}
		ev.Str("key", key).Msg("reminder dispatched")
	}
	return n, nil
}

// Window reports which reminder is due for an appointment starting at
// start: 48h in [start-48h, start-24h), 24h in [start-24h, start).
func Window(start, now time.Time) (string, bool) {
	switch {
	case !now.Before(start.Add(-48*time.Hour)) && now.Before(start.Add(-24*time.Hour)):
		return crew.Reminder48h, true
	case !now.Before(start.Add(-24*time.Hour)) && now.Before(start):
		return crew.Reminder24h, true
	default:
		return "", false
	}
}

func ClaimKey(id int64, kind string) string {
	return "appointment:" + strconv.FormatInt(id, 10) + ":" + kind
}

// Inputs builds the workflow inputs for a stored appointment. The patient
// name never leaves the store; the patient is identified by appointment.
func Inputs(a appointment.Appointment, start time.Time, kind string, now time.Time) crew.Inputs {
	return crew.Inputs{
		crew.InputMessageContent:  "",
		crew.InputPatientID:       fmt.Sprintf("APPT-%d", a.ID),
		crew.InputDeliveryTime:    now.Format(time.DateTime),
		crew.InputAppointmentID:   strconv.FormatInt(a.ID, 10),
		crew.InputReminderType:    kind,
		crew.InputPatientPhone:    "",
		crew.InputAppointmentDate: start.Format(time.DateTime),
		crew.InputCurrentDateTime: now.Format(time.DateTime),
	}
}
