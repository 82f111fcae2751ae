package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// WindowCounter counts the appointments that occupy a window.
type WindowCounter interface {
	CountActiveInWindow(ctx context.Context, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) (int, error)
}

// HasCapacity reports whether slot, instantiated on date, can take one more
// appointment. Canceled appointments and exclude do not count. The second
// return value is the number of appointments already in the window.
func HasCapacity(ctx context.Context, counter WindowCounter, providerID uuid.UUID, slot schedule.TimeSlot, date time.Time, exclude uuid.UUID) (bool, int, error) {
	from, until := slot.Window(date)

	booked, err := counter.CountActiveInWindow(ctx, providerID, from, until, exclude)
	if err != nil {
		return false, 0, err
	}
	return booked < slot.Capacity, booked, nil
}
