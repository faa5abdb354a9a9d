package appointment

import (
	"context"
	"fmt"
	"time"
)

type Service interface {
	Schedule(ctx context.Context, d Draft) (*Appointment, error)
	List(ctx context.Context) ([]Appointment, error)
}

type service struct {
	repo Repository
	loc  *time.Location
}

func NewService(repo Repository, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, loc: loc}
}

// Schedule validates the slot and appends the appointment. Duplicate slots
// are accepted.
func (s *service) Schedule(ctx context.Context, d Draft) (*Appointment, error) {
	if _, err := ParseSlot(d.Date, d.Time, s.loc); err != nil {
		return nil, err
	}
	a, err := s.repo.AppendAppointment(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("append appointment: %w", err)
	}
	return &a, nil
}

func (s *service) List(ctx context.Context) ([]Appointment, error) {
	list, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}
