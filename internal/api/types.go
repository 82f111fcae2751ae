package api

import (
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// Appointments

// ProviderBookingRequest is the body of POST /doctors/{id}/appointments.
// Amount and status are not read from clients.
type ProviderBookingRequest struct {
	PatientID   string  `json:"patient_id"`
	Purpose     string  `json:"purpose"`
	ScheduledAt string  `json:"scheduled_at"`
	FollowUpOf  *string `json:"follow_up_of,omitempty"`
}

// PatientBookingRequest is the body of POST /patients/{id}/appointments.
type PatientBookingRequest struct {
	DoctorID    string `json:"doctor_id"`
	Purpose     string `json:"purpose"`
	ScheduledAt string `json:"scheduled_at"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

// Schedule

type TimeSlotRequest struct {
	StartTime schedule.Clock `json:"start_time"`
	EndTime   schedule.Clock `json:"end_time"`
	Capacity  int            `json:"capacity"`
}

type ScheduleEntryRequest struct {
	Day       string   `json:"day"`
	TimeSlots []string `json:"time_slots"`
}

// Reviews

type CreateReviewRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
	Recommend     bool   `json:"recommend"`
	Text          string `json:"text"`
}

type UpdateReviewRequest struct {
	Rating    *int    `json:"rating,omitempty"`
	Recommend *bool   `json:"recommend,omitempty"`
	Text      *string `json:"text,omitempty"`
}

type ReplyRequest struct {
	Text string `json:"text"`
}

type ReactionRequest struct {
	Recommend bool `json:"recommend"`
}
