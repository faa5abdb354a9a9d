package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Repository persists audit entries. It may be nil, in which case the log
// line is the only sink.
type Repository interface {
	AppendAudit(ctx context.Context, e Entry) error
}

type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "audit").Logger(),
		now:  time.Now,
	}
}

// Record writes payload to the diagnostic sink. Storage failures are logged
// and never reported to the caller.
func (s *Service) Record(ctx context.Context, remote string, payload json.RawMessage) Entry {
	e := Entry{
		ID:         ulid.Make().String(),
		ReceivedAt: s.now().UTC(),
		RemoteAddr: remote,
		Payload:    payload,
	}
	s.log.Info().
		Str("audit_id", e.ID).
		Str("remote", remote).
		RawJSON("payload", payload).
		Msg("[AUDIT]")

	if s.repo != nil {
		if err := s.repo.AppendAudit(ctx, e); err != nil {
			s.log.Warn().Err(err).Str("audit_id", e.ID).Msg("audit persist failed")
		}
	}
	return e
}
