package crew

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dental-recall/internal/agent"
)

var testNow = time.Date(2025, 11, 18, 9, 0, 0, 0, time.UTC)

type sentSMS struct {
	to, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
	wait bool
}

func (n *fakeNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if n.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if n.err != nil {
		return "", n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentSMS{to: to, body: body})
	return "SM1", nil
}

type failingReviewer struct{}

func (failingReviewer) Review(context.Context, agent.Request) (string, error) {
	return "", errors.New("model unavailable")
}

type fixture struct {
	crew     *Crew
	notifier *fakeNotifier
	fs       afero.Fs
	now      time.Time
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{notifier: &fakeNotifier{}, fs: afero.NewMemMapFs(), now: testNow}
	opts := Options{
		Policy:    DefaultPolicy(),
		Practice:  Practice{Name: "Smile Dental", RescheduleLink: "https://smile.example/r"},
		Notifier:  f.notifier,
		Fs:        f.fs,
		ReportDir: "reports",
		Now:       func() time.Time { return f.now },
		Log:       zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.crew = New(nil, opts)
	return f
}

func baseInputs() Inputs {
	return Inputs{
		InputMessageContent:  "Hi! Reminder: You have an appointment at Smile Dental on 2025-11-20 at 10:00 AM.",
		InputPatientID:       "PAT-2025-001",
		InputDeliveryTime:    "2025-11-18 09:00:00",
		InputAppointmentID:   "APT-2025-001",
		InputReminderType:    "48h",
		InputPatientPhone:    "+15125550123",
		InputAppointmentDate: "2025-11-20 10:00:00",
	}
}

func (f *fixture) report(t *testing.T) map[string]any {
	t.Helper()
	b, err := afero.ReadFile(f.fs, "reports/reminder_report.json")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestRunSendsDueReminder(t *testing.T) {
	f := newFixture(t)

	res, err := f.crew.Run(context.Background(), baseInputs())
	require.NoError(t, err)

	assert.Equal(t, StatusSent, res.Status)
	require.Len(t, res.Stages, 3)
	assert.Equal(t, []string{TaskValidate, TaskSchedule, TaskCoordinate},
		[]string{res.Stages[0].Task, res.Stages[1].Task, res.Stages[2].Task})
	assert.Equal(t, "HIPAA Compliance Officer", res.Stages[0].Role)
	assert.Contains(t, res.Stages[1].Description, "APT-2025-001")

	require.NotNil(t, res.Compliance)
	assert.True(t, res.Compliance.Approved)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "+15125550123", f.notifier.sent[0].to)
	assert.Equal(t, res.Reminder.Body, f.notifier.sent[0].body)
	assert.Contains(t, res.Reminder.Body, "Reschedule: https://smile.example/r")

	require.NotNil(t, res.Delivery)
	assert.Equal(t, "SM1", res.Delivery.MessageSID)
	assert.Equal(t, "reports/reminder_report.json", res.ReportFile)
	assert.Equal(t, "sent", f.report(t)["status"])
	assert.Contains(t, res.String(), "sent")
}

func TestRunSchedulesFutureReminder(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputDeliveryTime] = ""
	in[InputAppointmentDate] = "2025-11-21 10:00:00"

	res, err := f.crew.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, res.Status)
	assert.Equal(t, time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC), res.Delivery.SendAt)
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, "scheduled", f.report(t)["status"])
}

func TestRunDefaultSendTimes(t *testing.T) {
	tests := []struct {
		kind string
		want time.Time
	}{
		{"48h", time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC)},
		{"24h", time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC)},
		{"batch", time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			f := newFixture(t)
			in := baseInputs()
			in[InputDeliveryTime] = ""
			in[InputReminderType] = tt.kind

			res, err := f.crew.Run(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Delivery.SendAt)
			assert.Equal(t, StatusScheduled, res.Status)
		})
	}
}

func TestRunBlockedByCompliance(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputMessageContent] = "Hi John Doe, your SSN 123-45-6789 is on file."

	res, err := f.crew.Run(context.Background(), in)
	require.ErrorIs(t, err, ErrDeliveryBlocked)
	require.NotNil(t, res)

	assert.Equal(t, StatusBlocked, res.Status)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, "blocked: phi.ssn, phi.patient_name", res.Stages[0].Output)
	assert.Nil(t, res.Reminder)
	assert.Empty(t, f.notifier.sent)

	exists, err := afero.Exists(f.fs, "reports/reminder_report.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunBlockedByCoordinator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Inputs)
		reason string
	}{
		{"past appointment", func(in Inputs) { in[InputAppointmentDate] = "2025-11-18 08:00:00" }, "appointment in the past"},
		{"appointment now", func(in Inputs) { in[InputAppointmentDate] = "2025-11-18 09:00:00" }, "appointment in the past"},
		{"delivery after appointment", func(in Inputs) { in[InputDeliveryTime] = "2025-11-20 11:00:00" }, "delivery time is after the appointment"},
		{"computed send time before opening", func(in Inputs) {
			in[InputDeliveryTime] = ""
			in[InputReminderType] = Reminder24h
			in[InputAppointmentDate] = "2025-11-19 06:00:00"
			in[InputCurrentDateTime] = "2025-11-18 06:30:00"
		}, "send time is outside business hours"},
		{"computed send time after closing", func(in Inputs) {
			in[InputDeliveryTime] = ""
			in[InputReminderType] = Reminder48h
			in[InputAppointmentDate] = "2025-11-20 21:00:00"
		}, "send time is outside business hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := baseInputs()
			tt.mutate(in)

			res, err := f.crew.Run(context.Background(), in)
			require.ErrorIs(t, err, ErrDeliveryBlocked)
			assert.Equal(t, StatusBlocked, res.Status)
			assert.Equal(t, tt.reason, res.Delivery.Reason)
			assert.Len(t, res.Stages, 3)
			assert.Empty(t, f.notifier.sent)
			assert.Equal(t, "blocked", f.report(t)["status"])
		})
	}
}

func TestRunSkipsWithoutPhone(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputPatientPhone] = ""

	res, err := f.crew.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, "no patient phone", res.Delivery.Reason)
	assert.Empty(t, f.notifier.sent)
}

func TestRunValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Inputs)
		stages int
	}{
		{"missing appointment", func(in Inputs) { delete(in, InputAppointmentDate) }, 2},
		{"bad appointment", func(in Inputs) { in[InputAppointmentDate] = "next tuesday" }, 0},
		{"bad delivery time", func(in Inputs) { in[InputDeliveryTime] = "soon" }, 0},
		{"bad current time", func(in Inputs) { in[InputCurrentDateTime] = "now" }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := baseInputs()
			tt.mutate(in)

			res, err := f.crew.Run(context.Background(), in)
			require.ErrorIs(t, err, ErrValidationFailed)
			assert.Equal(t, StatusFailed, res.Status)
			assert.NotEmpty(t, res.Error)
			assert.Len(t, res.Stages, tt.stages)
		})
	}
}

func TestRunDeliveryError(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("twilio down")

	res, err := f.crew.Run(context.Background(), baseInputs())
	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "twilio down")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StatusFailed, res.Delivery.Status)
}

func TestRunTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	f.notifier.wait = true

	_, err := f.crew.Run(context.Background(), baseInputs())
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.crew.Run(ctx, baseInputs())
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Stages)
}

func TestRunAcceptsIsoTimestamps(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputDeliveryTime] = "2025-11-18T09:00:00.123456"
	in[InputAppointmentDate] = "2025-11-20T10:00:00"
	in[InputCurrentDateTime] = "2025-11-18T09:30:00.000001"

	res, err := f.crew.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
}

func TestRunWithReviewer(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Reviewer = agent.NewMockClient() })

	res, err := f.crew.Run(context.Background(), baseInputs())
	require.NoError(t, err)
	for _, s := range res.Stages {
		assert.Equal(t, s.Role+": reviewed, no concerns.", s.Notes)
	}

	f = newFixture(t, func(o *Options) { o.Reviewer = failingReviewer{} })
	_, err = f.crew.Run(context.Background(), baseInputs())
	require.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestReplayFromCoordinator(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputDeliveryTime] = ""

	first, err := f.crew.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, first.Status)

	f.now = testNow.Add(2 * time.Hour)
	second, err := f.crew.Replay(context.Background(), first, TaskCoordinate)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, second.Status)
	assert.Equal(t, first.RunID, second.ReplayOf)
	assert.NotEqual(t, first.RunID, second.RunID)
	require.Len(t, second.Stages, 3)
	assert.Equal(t, first.Stages[0], second.Stages[0])
	assert.Equal(t, first.Stages[1], second.Stages[1])
	assert.Equal(t, first.Reminder, second.Reminder)
	assert.Len(t, f.notifier.sent, 1)
}

func TestReplayErrors(t *testing.T) {
	f := newFixture(t)
	in := baseInputs()
	in[InputMessageContent] = "Dr. Smith says hi"
	blocked, err := f.crew.Run(context.Background(), in)
	require.ErrorIs(t, err, ErrDeliveryBlocked)

	_, err = f.crew.Replay(context.Background(), blocked, "train_task")
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.crew.Replay(context.Background(), blocked, TaskSchedule)
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.crew.Replay(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrValidationFailed)

	again, err := f.crew.Replay(context.Background(), blocked, "")
	require.ErrorIs(t, err, ErrDeliveryBlocked)
	assert.Equal(t, blocked.RunID, again.ReplayOf)
}

func TestSetDefinition(t *testing.T) {
	f := newFixture(t)
	def := DefaultDefinition()
	a := def.Agents["hipaa_compliance_officer"]
	a.Role = "Privacy Officer for {appointment_id}"
	def.Agents["hipaa_compliance_officer"] = a
	f.crew.SetDefinition(def)
	f.crew.SetDefinition(nil)

	res, err := f.crew.Run(context.Background(), baseInputs())
	require.NoError(t, err)
	assert.Equal(t, "Privacy Officer for APT-2025-001", res.Stages[0].Role)
}

func TestParseDateTime(t *testing.T) {
	want := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2025-11-20 10:00:00",
		"2025-11-20T10:00:00",
		"2025-11-20T10:00:00.000000",
		"2025-11-20T10:00:00Z",
		"2025-11-20T12:00:00+02:00",
		"2025-11-20 10:00",
	} {
		got, err := ParseDateTime(s, time.UTC)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseDateTime("20/11/2025", time.UTC)
	assert.Error(t, err)
}
