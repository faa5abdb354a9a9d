package crew

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusScheduled Status = "scheduled"
	StatusSkipped   Status = "skipped"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
)

// StageOutput is what one task produced.
type StageOutput struct {
	Task        string    `json:"task"`
	Agent       string    `json:"agent"`
	Role        string    `json:"role"`
	Description string    `json:"description"`
	Output      string    `json:"output"`
	Notes       string    `json:"notes,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Delivery struct {
	Status        Status    `json:"status"`
	AppointmentAt time.Time `json:"appointment_at"`
	SendAt        time.Time `json:"send_at"`
	MessageSID    string    `json:"message_sid,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// Result is the outcome of one crew run. It is returned together with the
// error when a run stops early.
type Result struct {
	RunID      string            `json:"run_id"`
	ReplayOf   string            `json:"replay_of,omitempty"`
	Status     Status            `json:"status"`
	Inputs     Inputs            `json:"inputs"`
	Stages     []StageOutput     `json:"stages"`
	Compliance *ComplianceReport `json:"compliance,omitempty"`
	Reminder   *Reminder         `json:"reminder,omitempty"`
	Delivery   *Delivery         `json:"delivery,omitempty"`
	ReportFile string            `json:"report_file,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (r *Result) stage(task string) (StageOutput, bool) {
	for _, s := range r.Stages {
		if s.Task == task {
			return s, true
		}
	}
	return StageOutput{}, false
}

func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", r.RunID, r.Status)
	if id := r.Inputs.Get(InputAppointmentID); id != "" {
		fmt.Fprintf(&b, "Appointment: %s (%s)\n", id, ReminderKind(r.Inputs.Get(InputReminderType)))
	}
	if r.Compliance != nil {
		if r.Compliance.Approved {
			b.WriteString("Compliance: approved\n")
		} else {
			rules := make([]string, 0, len(r.Compliance.Violations))
			for _, v := range r.Compliance.Violations {
				rules = append(rules, v.Rule)
			}
			fmt.Fprintf(&b, "Compliance: blocked (%s)\n", strings.Join(rules, ", "))
		}
	}
	if r.Reminder != nil {
		fmt.Fprintf(&b, "Reminder: %s\n", r.Reminder.Body)
	}
	if d := r.Delivery; d != nil {
		fmt.Fprintf(&b, "Delivery: %s for %s", d.Status, d.SendAt.Format(time.RFC3339))
		if d.MessageSID != "" {
			fmt.Fprintf(&b, " (%s)", d.MessageSID)
		}
		if d.Reason != "" {
			fmt.Fprintf(&b, ": %s", d.Reason)
		}
		b.WriteString("\n")
	}
	if r.ReportFile != "" {
		fmt.Fprintf(&b, "Report: %s\n", r.ReportFile)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}
