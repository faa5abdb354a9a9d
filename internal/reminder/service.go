// Package reminder runs the reminder workflow on request, stores each run
// and serves stored runs.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"dental-recall/internal/crew"
	"dental-recall/internal/storage"
)

// Workflow is the crew as seen by this package.
type Workflow interface {
	crew.Runner
	Replay(ctx context.Context, prev *crew.Result, fromTask string) (*crew.Result, error)
}

// RunStore is the part of storage.Store used for runs.
type RunStore interface {
	SaveRun(ctx context.Context, r storage.RunRecord) error
	GetRun(ctx context.Context, id string) (storage.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Service struct {
	workflow Workflow
	store    RunStore
	log      zerolog.Logger
}

func NewService(w Workflow, store RunStore, log zerolog.Logger) *Service {
	return &Service{
		workflow: w,
		store:    store,
		log:      log.With().Str("component", "reminder").Logger(),
	}
}

// Trigger runs the workflow and stores the run, whatever its outcome. The
// workflow error is returned unchanged.
func (s *Service) Trigger(ctx context.Context, in crew.Inputs) (*crew.Result, error) {
	res, err := s.workflow.Run(ctx, in)
	s.save(ctx, res)
	return res, err
}

// Replay re-runs the stored run id from fromTask.
func (s *Service) Replay(ctx context.Context, id, fromTask string) (*crew.Result, error) {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.workflow.Replay(ctx, prev, fromTask)
	s.save(ctx, res)
	return res, err
}

func (s *Service) save(ctx context.Context, res *crew.Result) {
	if res == nil {
		return
	}
	rec, err := NewRunRecord(res)
	if err == nil {
		err = s.store.SaveRun(context.WithoutCancel(ctx), rec)
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", res.RunID).Msg("run persist failed")
	}
}

func (s *Service) Get(ctx context.Context, id string) (*crew.Result, error) {
	rec, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeResult(rec)
}

func (s *Service) List(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	return s.store.ListRuns(ctx, limit)
}

// NewRunRecord encodes res for storage.
func NewRunRecord(res *crew.Result) (storage.RunRecord, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("encode run: %w", err)
	}
	return storage.RunRecord{
		ID:            res.RunID,
		AppointmentID: res.Inputs.Get(crew.InputAppointmentID),
		ReminderType:  res.Inputs.Get(crew.InputReminderType),
		Status:        string(res.Status),
		CreatedAt:     res.StartedAt,
		Payload:       payload,
	}, nil
}

func DecodeResult(rec storage.RunRecord) (*crew.Result, error) {
	var res crew.Result
	if err := json.Unmarshal(rec.Payload, &res); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", rec.ID, err)
	}
	return &res, nil
}
