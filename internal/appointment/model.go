package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type Status string

const (
	StatusWaiting     Status = "WAITING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCanceled    Status = "CANCELED"
	StatusPaid        Status = "PAID"
	StatusCompleted   Status = "COMPLETED"
)

var statuses = []Status{StatusWaiting, StatusConfirmed, StatusRescheduled, StatusCanceled, StatusPaid, StatusCompleted}

func ParseStatus(s string) (Status, bool) {
	for _, st := range statuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// Origin identifies which side of the clinic initiated a booking.
type Origin string

const (
	OriginProvider Origin = "provider"
	OriginPatient  Origin = "patient"
)

type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"doctor_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	Purpose     string     `json:"purpose"`
	AmountCents int64      `json:"amount_cents"`
	Status      Status     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	FollowUpOf  *uuid.UUID `json:"follow_up_of,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BookingRequest carries what a client may choose. Amount and status are
// never taken from the client.
type BookingRequest struct {
	ProviderID  uuid.UUID
	PatientID   uuid.UUID
	Purpose     string
	ScheduledAt time.Time
	FollowUpOf  *uuid.UUID
}

// WindowAvailability is one time slot instantiated on a calendar date.
type WindowAvailability struct {
	Slot      schedule.TimeSlot `json:"time_slot"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Booked    int               `json:"booked"`
	Remaining int               `json:"remaining"`
}
