// Package crew runs the dental reminder workflow: a compliance review, then
// reminder formatting, then delivery coordination.
package crew

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"dental-recall/internal/agent"
)

const DefaultTimeout = 2 * time.Minute

// Runner executes the workflow for one set of inputs. The result is non-nil
// whenever at least one stage ran, including on error.
type Runner interface {
	Run(ctx context.Context, in Inputs) (*Result, error)
}

type Options struct {
	Policy   Policy
	Practice Practice
	// Notifier defaults to a LogNotifier.
	Notifier Notifier
	// Reviewer adds model notes to every stage when set.
	Reviewer  agent.Client
	Fs        afero.Fs
	ReportDir string
	Timeout   time.Duration
	Location  *time.Location
	Now       func() time.Time
	Log       zerolog.Logger
}

type Crew struct {
	def  atomic.Pointer[Definition]
	opts Options
	log  zerolog.Logger
}

func New(def *Definition, opts Options) *Crew {
	if def == nil {
		def = DefaultDefinition()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.ReportDir == "" {
		opts.ReportDir = "."
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.BusinessEnd == 0 {
		opts.Policy.BusinessStart, opts.Policy.BusinessEnd = defaultOpenClock, defaultCloseClock
	}
	log := opts.Log.With().Str("component", "crew").Logger()
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: log}
	}
	c := &Crew{opts: opts, log: log}
	c.def.Store(def)
	return c
}

func (c *Crew) Definition() *Definition { return c.def.Load() }

// SetDefinition swaps the agent and task configuration used by later runs.
func (c *Crew) SetDefinition(d *Definition) {
	if d != nil {
		c.def.Store(d)
	}
}

func (c *Crew) Run(ctx context.Context, in Inputs) (*Result, error) {
	return c.execute(ctx, c.newResult(in), 0)
}

// Replay runs the workflow again from fromTask, reusing the outputs prev
// recorded for the earlier tasks. An empty fromTask replays everything.
func (c *Crew) Replay(ctx context.Context, prev *Result, fromTask string) (*Result, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: no run to replay", ErrValidationFailed)
	}
	from := 0
	if fromTask != "" {
		from = indexOf(fromTask)
		if from < 0 {
			return nil, fmt.Errorf("%w: unknown task %q", ErrValidationFailed, fromTask)
		}
	}

	in := prev.Inputs.Clone()
	if in == nil {
		in = Inputs{}
	}
	in[InputCurrentDateTime] = c.opts.Now().In(c.opts.Location).Format(isoLayout)
	res := c.newResult(in)
	res.ReplayOf = prev.RunID

	for _, task := range taskOrder[:from] {
		s, ok := prev.stage(task)
		if !ok {
			return nil, fmt.Errorf("%w: run %s has no output for %s", ErrValidationFailed, prev.RunID, task)
		}
		res.Stages = append(res.Stages, s)
	}
	if from > 0 {
		if prev.Compliance == nil || !prev.Compliance.Approved {
			return nil, fmt.Errorf("%w: run %s was not approved by compliance", ErrValidationFailed, prev.RunID)
		}
		res.Compliance = prev.Compliance
	}
	if from > 1 {
		if prev.Reminder == nil {
			return nil, fmt.Errorf("%w: run %s has no reminder", ErrValidationFailed, prev.RunID)
		}
		res.Reminder = prev.Reminder
	}
	return c.execute(ctx, res, from)
}

func indexOf(task string) int {
	for i, t := range taskOrder {
		if t == task {
			return i
		}
	}
	return -1
}

func (c *Crew) newResult(in Inputs) *Result {
	if in == nil {
		in = Inputs{}
	}
	return &Result{
		RunID:     uuid.NewString(),
		Inputs:    in,
		Stages:    []StageOutput{},
		StartedAt: c.opts.Now().UTC(),
	}
}

// runState carries values parsed once per run.
type runState struct {
	now        time.Time
	deliveryAt time.Time
	appointAt  time.Time
}

func (c *Crew) execute(ctx context.Context, res *Result, from int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	def := c.def.Load()
	log := c.log.With().Str("run_id", res.RunID).Str("appointment_id", res.Inputs.Get(InputAppointmentID)).Logger()
	log.Info().Str("from", taskOrder[from]).Msg("crew run started")

	st, err := c.parseTimes(res.Inputs)
	if err != nil {
		return c.finish(log, res, err)
	}

	for _, task := range taskOrder[from:] {
		if err := ctx.Err(); err != nil {
			return c.finish(log, res, fmt.Errorf("%w: %w", ErrTransport, err))
		}
		tc, ac := def.Stage(task)
		out := StageOutput{
			Task:        task,
			Agent:       tc.Agent,
			Role:        Interpolate(ac.Role, res.Inputs),
			Description: Interpolate(tc.Description, res.Inputs),
		}

		var stageErr error
		switch task {
		case TaskValidate:
			out.Output, stageErr = c.validate(res, st)
		case TaskSchedule:
			out.Output, stageErr = c.schedule(res, st)
		case TaskCoordinate:
			out.Output, stageErr = c.coordinate(ctx, log, res, st)
		}
		if stageErr != nil && !errors.Is(stageErr, ErrDeliveryBlocked) {
			return c.finish(log, res, stageErr)
		}

		if c.opts.Reviewer != nil {
			notes, err := c.opts.Reviewer.Review(ctx, agent.Request{
				Role:           out.Role,
				Goal:           Interpolate(ac.Goal, res.Inputs),
				Backstory:      Interpolate(ac.Backstory, res.Inputs),
				Task:           out.Description,
				ExpectedOutput: tc.ExpectedOutput,
				Output:         out.Output,
			})
			if err != nil {
				return c.finish(log, res, fmt.Errorf("%w: reviewer notes for %s: %w", ErrTransport, task, err))
			}
			out.Notes = notes
		}

		out.FinishedAt = c.opts.Now().UTC()
		res.Stages = append(res.Stages, out)
		log.Debug().Str("task", task).Str("output", out.Output).Msg("stage finished")

		if task == TaskCoordinate {
			res, err := c.finish(log, res, stageErr)
			c.writeReport(log, res, tc)
			return res, err
		}
		if stageErr != nil {
			return c.finish(log, res, stageErr)
		}
	}
	return c.finish(log, res, nil)
}

func (c *Crew) parseTimes(in Inputs) (runState, error) {
	var st runState
	st.now = c.opts.Now().In(c.opts.Location)
	if v := in.Get(InputCurrentDateTime); v != "" {
		t, err := ParseDateTime(v, c.opts.Location)
		if err != nil {
			return st, fmt.Errorf("%w: current_datetime: %w", ErrValidationFailed, err)
		}
		st.now = t
	}
	if v := in.Get(InputDeliveryTime); v != "" {
		t, err := ParseDateTime(v, c.opts.Location)
		if err != nil {
			return st, fmt.Errorf("%w: delivery_time: %w", ErrValidationFailed, err)
		}
		st.deliveryAt = t
	}
	if v := in.Get(InputAppointmentDate); v != "" {
		t, err := ParseDateTime(v, c.opts.Location)
		if err != nil {
			return st, fmt.Errorf("%w: appointment_datetime: %w", ErrValidationFailed, err)
		}
		st.appointAt = t
	}
	return st, nil
}

func (c *Crew) validate(res *Result, st runState) (string, error) {
	rep := CheckCompliance(ComplianceInput{
		Message:    res.Inputs.Get(InputMessageContent),
		PatientID:  res.Inputs.Get(InputPatientID),
		DeliveryAt: st.deliveryAt,
	}, c.opts.Policy, c.opts.Now().UTC())
	res.Compliance = &rep
	if rep.Approved {
		return "approved", nil
	}
	rules := make([]string, 0, len(rep.Violations))
	for _, v := range rep.Violations {
		rules = append(rules, v.Rule)
	}
	res.Status = StatusBlocked
	joined := strings.Join(rules, ", ")
	return "blocked: " + joined, fmt.Errorf("%w: compliance: %s", ErrDeliveryBlocked, joined)
}

func (c *Crew) schedule(res *Result, st runState) (string, error) {
	r := FormatReminder(res.Inputs.Get(InputReminderType), res.Inputs.Get(InputMessageContent), st.appointAt, c.opts.Practice)
	res.Reminder = &r
	return r.Body, nil
}

func (c *Crew) coordinate(ctx context.Context, log zerolog.Logger, res *Result, st runState) (string, error) {
	if st.appointAt.IsZero() {
		return "", fmt.Errorf("%w: appointment_datetime is required", ErrValidationFailed)
	}
	if res.Reminder == nil {
		return "", fmt.Errorf("%w: no reminder to deliver", ErrValidationFailed)
	}

	kind := ReminderKind(res.Inputs.Get(InputReminderType))
	sendAt := st.deliveryAt
	if sendAt.IsZero() {
		sendAt = st.appointAt.Add(-leadTime(kind))
	}
	d := &Delivery{AppointmentAt: st.appointAt, SendAt: sendAt}
	res.Delivery = d

	block := func(reason string) (string, error) {
		d.Status, d.Reason = StatusBlocked, reason
		res.Status = StatusBlocked
		return "blocked: " + reason, fmt.Errorf("%w: %s", ErrDeliveryBlocked, reason)
	}

	switch {
	case !st.appointAt.After(st.now):
		return block("appointment in the past")
	case sendAt.After(st.appointAt):
		return block("delivery time is after the appointment")
	case !c.opts.Policy.InHours(sendAt):
		return block("send time is outside business hours")
	}

	if sendAt.After(st.now) {
		d.Status = StatusScheduled
	} else {
		phone := strings.TrimSpace(res.Inputs.Get(InputPatientPhone))
		if phone == "" {
			d.Status, d.Reason = StatusSkipped, "no patient phone"
		} else {
			sid, err := c.opts.Notifier.Send(ctx, phone, res.Reminder.Body)
			if err != nil {
				d.Status, d.Reason = StatusFailed, "delivery failed"
				return "", fmt.Errorf("%w: send reminder: %w", ErrTransport, err)
			}
			d.Status, d.MessageSID = StatusSent, sid
			log.Info().Str("message_sid", sid).Str("to", MaskPhone(phone)).Msg("reminder sent")
		}
	}
	res.Status = d.Status
	return fmt.Sprintf("%s for %s", d.Status, sendAt.Format(time.RFC3339)), nil
}

func (c *Crew) writeReport(log zerolog.Logger, res *Result, tc TaskConfig) {
	name := tc.OutputFile
	if name == "" {
		name = DefaultOutputFile
	}
	path := filepath.Join(c.opts.ReportDir, name)
	if err := c.opts.Fs.MkdirAll(c.opts.ReportDir, 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("report dir create failed")
		return
	}
	res.ReportFile = path
	b, err := json.MarshalIndent(res, "", "  ")
	if err == nil {
		err = afero.WriteFile(c.opts.Fs, path, b, 0o644)
	}
	if err != nil {
		res.ReportFile = ""
		log.Warn().Err(err).Str("path", path).Msg("report write failed")
	}
}

func (c *Crew) finish(log zerolog.Logger, res *Result, err error) (*Result, error) {
	res.FinishedAt = c.opts.Now().UTC()
	if err == nil {
		log.Info().Str("status", string(res.Status)).Msg("crew run finished")
		return res, nil
	}
	if errors.Is(err, ErrDeliveryBlocked) {
		res.Status = StatusBlocked
	} else {
		res.Status = StatusFailed
	}
	res.Error = err.Error()
	log.Warn().Err(err).Str("status", string(res.Status)).Msg("crew run stopped")
	return res, err
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseDateTime accepts the timestamp formats produced by the scheduling
// frontend and trigger payloads. Values without an offset are read in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date-time %q", s)
}
