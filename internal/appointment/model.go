package appointment

import (
	"errors"
	"time"
)

// SlotLayout accepts one or two digit month, day, hour and minute,
// the same inputs "%Y-%m-%d %H:%M" accepts.
const SlotLayout = "2006-1-2 15:4"

var ErrInvalidSlot = errors.New("invalid date or time format")

// Appointment is the stored record. Date and Time keep the submitted text.
type Appointment struct {
	ID          int64  `json:"id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Notes       string `json:"notes"`
}

// Draft is an appointment that has not been assigned an id yet.
type Draft struct {
	PatientName string
	Date        string
	Time        string
	Notes       string
}

// Record turns the draft into a stored appointment with the given id.
func (d Draft) Record(id int64) Appointment {
	return Appointment{
		ID:          id,
		PatientName: d.PatientName,
		Date:        d.Date,
		Time:        d.Time,
		Notes:       d.Notes,
	}
}

// ParseSlot validates date+time as a calendar date-time in loc. Year 0 is
// rejected.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(SlotLayout, date+" "+clock, loc)
	if err != nil || t.Year() < 1 {
		return time.Time{}, ErrInvalidSlot
	}
	return t, nil
}

// Start returns the appointment start time in loc.
func (a Appointment) Start(loc *time.Location) (time.Time, error) {
	return ParseSlot(a.Date, a.Time, loc)
}
