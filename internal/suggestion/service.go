// Package suggestion serves the placeholder AI appointment suggestion.
package suggestion

import (
	"encoding/json"
	"fmt"
)

const DefaultPatientName = "Patient"

type Suggestion struct {
	SuggestedDate string `json:"suggested_date"`
	SuggestedTime string `json:"suggested_time"`
	Message       string `json:"message"`
}

// Suggest returns the fixed suggestion for patientName. The visit history
// is accepted and not inspected.
func Suggest(patientName string, _ json.RawMessage) Suggestion {
	return Suggestion{
		SuggestedDate: "2025-10-15",
		SuggestedTime: "10:00",
		Message:       fmt.Sprintf("Hi %s, our AI suggests 10:00 AM tomorrow for your appointment. Does that work?", patientName),
	}
}
