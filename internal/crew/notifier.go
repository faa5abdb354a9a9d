package crew

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier delivers a reminder text and returns the provider message id.
type Notifier interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// LogNotifier only logs the reminder. It stands in when no SMS provider is
// configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dry-run-" + uuid.NewString()
	n.Log.Info().
		Str("to", MaskPhone(to)).
		Int("chars", len(body)).
		Str("message_sid", id).
		Msg("reminder not sent: sms provider not configured")
	return id, nil
}

// MaskPhone keeps the last four digits of a phone number.
func MaskPhone(p string) string {
	if len(p) <= 4 {
		return "****"
	}
	return "****" + p[len(p)-4:]
}
