package crew

import (
	"strings"
	"time"
)

const (
	Reminder48h     = "48h"
	Reminder24h     = "24h"
	ReminderGeneric = "generic"
)

// Practice holds the values filled into reminder templates.
type Practice struct {
	Name           string
	RescheduleLink string
}

var templates = map[string]string{
	Reminder48h:     "Hi! Reminder: You have an appointment at [PRACTICE_NAME] on [DATE] at [TIME]. Reply C to confirm.",
	Reminder24h:     "Hi! Your appointment at [PRACTICE_NAME] is tomorrow, [DATE] at [TIME]. Reply C to confirm.",
	ReminderGeneric: "Hi! Reminder: You have an upcoming appointment at [PRACTICE_NAME] on [DATE] at [TIME].",
}

type Reminder struct {
	Type           string `json:"type"`
	Body           string `json:"body"`
	RescheduleLink string `json:"reschedule_link,omitempty"`
}

// ReminderKind maps a reminder_type input onto 48h, 24h or generic.
func ReminderKind(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case Reminder48h:
		return Reminder48h
	case Reminder24h:
		return Reminder24h
	default:
		return ReminderGeneric
	}
}

// leadTime is how long before the appointment a reminder of kind goes out.
func leadTime(kind string) time.Duration {
	switch kind {
	case Reminder48h:
		return 48 * time.Hour
	case Reminder24h:
		return 24 * time.Hour
	default:
		return 0
	}
}

// FormatReminder builds the reminder text. An empty message selects the
// template for the reminder type. A zero appt leaves [DATE] and [TIME] in
// place.
func FormatReminder(reminderType, message string, appt time.Time, p Practice) Reminder {
	kind := ReminderKind(reminderType)
	body := strings.TrimSpace(message)
	if body == "" {
		body = templates[kind]
	}

	var pairs []string
	if p.RescheduleLink != "" {
		pairs = append(pairs, "[RESCHEDULE_LINK]", p.RescheduleLink)
	}
	if p.Name != "" {
		pairs = append(pairs, "[PRACTICE_NAME]", p.Name)
	}
	if !appt.IsZero() {
		pairs = append(pairs, "[DATE]", appt.Format("2006-01-02"), "[TIME]", appt.Format("3:04 PM"))
	}
	body = strings.NewReplacer(pairs...).Replace(body)

	if p.RescheduleLink != "" && !strings.Contains(body, p.RescheduleLink) {
		body += " Reschedule: " + p.RescheduleLink
	}
	return Reminder{Type: kind, Body: body, RescheduleLink: p.RescheduleLink}
}
