package crew

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	InputMessageContent  = "message_content"
	InputPatientID       = "patient_id"
	InputDeliveryTime    = "delivery_time"
	InputAppointmentID   = "appointment_id"
	InputReminderType    = "reminder_type"
	InputPatientPhone    = "patient_phone"
	InputAppointmentDate = "appointment_datetime"
	InputCurrentDateTime = "current_datetime"
)

// isoLayout is the timestamp format written into current_datetime.
const isoLayout = "2006-01-02T15:04:05.999999"

var triggerKeys = []string{
	InputMessageContent,
	InputPatientID,
	InputDeliveryTime,
	InputAppointmentID,
	InputReminderType,
	InputPatientPhone,
	InputAppointmentDate,
}

// Inputs are the named string values interpolated into agent and task text.
type Inputs map[string]string

func (in Inputs) Get(key string) string { return in[key] }

func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// InputsFromJSON builds inputs from a trigger payload. Only the known keys
// are read, missing ones become "" and current_datetime is set to now.
func InputsFromJSON(data []byte, now time.Time) (Inputs, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: invalid JSON payload provided", ErrValidationFailed)
	}
	in := make(Inputs, len(triggerKeys)+1)
	for _, k := range triggerKeys {
		in[k] = stringValue(payload[k])
	}
	in[InputCurrentDateTime] = now.Format(isoLayout)
	return in, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// SampleInputs is the demo appointment used by the standalone runner: a
// 48h reminder for a 10:00 appointment two days after now.
func SampleInputs(now time.Time) Inputs {
	day := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, now.Location())
	appt := day.AddDate(0, 0, 2)
	return Inputs{
		InputMessageContent:  fmt.Sprintf("Hi! Reminder: You have an appointment at Smile Dental on %s at 10:00 AM.", appt.Format("2006-01-02")),
		InputPatientID:       "PAT-2025-001",
		InputDeliveryTime:    day.Format(time.DateTime),
		InputAppointmentID:   "APT-2025-001",
		InputReminderType:    "48h",
		InputPatientPhone:    "+15125550123",
		InputAppointmentDate: appt.Format(time.DateTime),
		InputCurrentDateTime: now.Format(isoLayout),
	}
}
