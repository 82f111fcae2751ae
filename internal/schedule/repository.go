package schedule

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

var (
	ErrTimeSlotNotFound = apperr.NotFound("Time slot not found.")
	ErrEntryNotFound    = apperr.NotFound("Schedule not found.")
)

type Repository interface {
	// Time slots
	CreateTimeSlot(ctx context.Context, slot *TimeSlot) error
	ListTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error)
	GetTimeSlotsByIDs(ctx context.Context, ids []uuid.UUID) ([]TimeSlot, error)
	DeleteTimeSlot(ctx context.Context, providerID, slotID uuid.UUID) error

	// Schedule entries
	EntryExists(ctx context.Context, providerID uuid.UUID, day Day) (bool, error)
	CreateEntry(ctx context.Context, entry *Entry) error
	DeleteEntry(ctx context.Context, providerID, entryID uuid.UUID) error
	LoadAvailability(ctx context.Context, providerID uuid.UUID) (Availability, error)
}
