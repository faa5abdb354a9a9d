package crew

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatReminder(t *testing.T) {
	appt := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	practice := Practice{Name: "Smile Dental", RescheduleLink: "https://smile.example/r"}

	tests := []struct {
		name     string
		kind     string
		message  string
		practice Practice
		want     Reminder
	}{
		{
			name:     "48h template",
			kind:     "48h",
			practice: practice,
			want: Reminder{
				Type:           Reminder48h,
				Body:           "Hi! Reminder: You have an appointment at Smile Dental on 2025-11-20 at 10:00 AM. Reply C to confirm. Reschedule: https://smile.example/r",
				RescheduleLink: "https://smile.example/r",
			},
		},
		{
			name:     "24h template",
			kind:     "24H",
			practice: practice,
			want: Reminder{
				Type:           Reminder24h,
				Body:           "Hi! Your appointment at Smile Dental is tomorrow, 2025-11-20 at 10:00 AM. Reply C to confirm. Reschedule: https://smile.example/r",
				RescheduleLink: "https://smile.example/r",
			},
		},
		{
			name:     "other types are generic",
			kind:     "batch",
			practice: practice,
			want: Reminder{
				Type:           ReminderGeneric,
				Body:           "Hi! Reminder: You have an upcoming appointment at Smile Dental on 2025-11-20 at 10:00 AM. Reschedule: https://smile.example/r",
				RescheduleLink: "https://smile.example/r",
			},
		},
		{
			name:     "message kept and link filled in place",
			kind:     "48h",
			message:  "See you soon! Change it here: [RESCHEDULE_LINK]",
			practice: practice,
			want: Reminder{
				Type:           Reminder48h,
				Body:           "See you soon! Change it here: https://smile.example/r",
				RescheduleLink: "https://smile.example/r",
			},
		},
		{
			name:    "no link configured",
			kind:    "24h",
			message: "Your appointment is tomorrow.",
			want:    Reminder{Type: Reminder24h, Body: "Your appointment is tomorrow."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReminder(tt.kind, tt.message, appt, tt.practice))
		})
	}
}

func TestFormatReminderWithoutAppointmentTime(t *testing.T) {
	r := FormatReminder("48h", "", time.Time{}, Practice{Name: "Smile Dental"})
	assert.Equal(t, "Hi! Reminder: You have an appointment at Smile Dental on [DATE] at [TIME]. Reply C to confirm.", r.Body)
}

func TestLeadTime(t *testing.T) {
	assert.Equal(t, 48*time.Hour, leadTime(ReminderKind("48h")))
	assert.Equal(t, 24*time.Hour, leadTime(ReminderKind(" 24h ")))
	assert.Equal(t, time.Duration(0), leadTime(ReminderKind("")))
}
