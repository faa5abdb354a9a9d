package audit

import (
	"encoding/json"
	"time"
)

// Entry is one payload received on /audit. Payload is kept verbatim.
type Entry struct {
	ID         string          `json:"id"`
	ReceivedAt time.Time       `json:"received_at"`
	RemoteAddr string          `json:"remote_addr,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
