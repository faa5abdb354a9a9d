package appointment

import "context"

// Repository is the append-only appointment store. Implementations assign
// ids in creation order starting at 1.
type Repository interface {
	AppendAppointment(ctx context.Context, d Draft) (Appointment, error)
	ListAppointments(ctx context.Context) ([]Appointment, error)
}
