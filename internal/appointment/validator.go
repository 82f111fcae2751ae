package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

var (
	ErrNoSchedule  = apperr.Violation("Doctor has not created a schedule.")
	ErrInvalidDate = apperr.Violation("Invalid Date: Check the Doctor Appointment Schedule before booking.")
	ErrFullyBooked = apperr.Violation("Timeslot is Fully Booked.")
)

// Rejection codes, used as metric labels.
const (
	CodeLeadTime    = "lead_time"
	CodeNoSchedule  = "no_schedule"
	CodeInvalidDate = "invalid_date"
	CodeFullyBooked = "fully_booked"
)

// ValidationStore is what Validate reads. Repository satisfies it, both
// outside and inside a transaction.
type ValidationStore interface {
	WindowCounter
	LoadAvailability(ctx context.Context, providerID uuid.UUID) (schedule.Availability, error)
}

// Decision is the outcome of validating a candidate instant.
type Decision struct {
	Accepted    bool
	Reason      string
	Code        string
	Err         error
	At          time.Time // candidate in the reference location
	Slot        schedule.TimeSlot
	WindowStart time.Time
	WindowEnd   time.Time
}

type Validator struct {
	leadTime time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewValidator(leadTime time.Duration, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{
		leadTime: leadTime,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock replaces the validator's notion of now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

func (v *Validator) Location() *time.Location {
	return v.loc
}

// LeadTimeError is the rejection for instants closer than the lead time.
func (v *Validator) LeadTimeError() error {
	return apperr.Violationf("Earliest appointment must be at least %s from now.", humanize(v.leadTime))
}

// Validate runs the booking checks in order and stops at the first failure:
// lead time, schedule existence, day and window match, capacity. exclude is
// left out of the capacity count, uuid.Nil for new bookings.
func (v *Validator) Validate(ctx context.Context, store ValidationStore, providerID uuid.UUID, at time.Time, exclude uuid.UUID) (Decision, error) {
	at = at.In(v.loc)
	d := Decision{At: at}

	if at.Before(v.now().Add(v.leadTime)) {
		return d.reject(CodeLeadTime, v.LeadTimeError()), nil
	}

	avail, err := store.LoadAvailability(ctx, providerID)
	if err != nil {
		return d, fmt.Errorf("load availability: %w", err)
	}
	if !avail.HasSchedule() {
		return d.reject(CodeNoSchedule, ErrNoSchedule), nil
	}

	slot, ok := avail.Match(at)
	if !ok {
		return d.reject(CodeInvalidDate, ErrInvalidDate), nil
	}
	d.Slot = slot
	d.WindowStart, d.WindowEnd = slot.Window(at)

	free, _, err := HasCapacity(ctx, store, providerID, slot, at, exclude)
	if err != nil {
		return d, fmt.Errorf("check capacity: %w", err)
	}
	if !free {
		return d.reject(CodeFullyBooked, ErrFullyBooked), nil
	}

	d.Accepted = true
	return d, nil
}

func (d Decision) reject(code string, err error) Decision {
	d.Accepted = false
	d.Code = code
	d.Err = err
	d.Reason, _ = apperr.Detail(err)
	return d
}

func humanize(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Minute:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
