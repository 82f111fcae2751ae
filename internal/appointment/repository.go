package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("Appointment not found.")
	ErrStatusChanged       = apperr.Conflict("Appointment was modified concurrently, please retry.")
)

type Repository interface {
	// WithinTx runs fn against a repository bound to one transaction.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// For conflict checks
	LoadAvailability(ctx context.Context, providerID uuid.UUID) (schedule.Availability, error)
	LockProvider(ctx context.Context, providerID uuid.UUID) error
	CountActiveInWindow(ctx context.Context, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) (int, error)

	// Creation and updates
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, from Status, at time.Time) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev events.Event) error
}
