package review

import (
	"time"

	"github.com/google/uuid"
)

// Review is a patient's rating of a completed appointment. ProviderID and
// PatientID come from the appointment.
type Review struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProviderID    uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Rating        int       `json:"rating"`
	Recommend     bool      `json:"recommend"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Reply struct {
	ID        uuid.UUID `json:"id"`
	ReviewID  uuid.UUID `json:"review_id"`
	UserID    uuid.UUID `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Target is what a reaction points at.
type Target string

const (
	TargetReview Target = "review"
	TargetReply  Target = "reply"
)

// Reaction is a user's like (Recommend) or dislike of a review or reply.
// There is at most one per user and target.
type Reaction struct {
	Target    Target    `json:"target"`
	TargetID  uuid.UUID `json:"target_id"`
	UserID    uuid.UUID `json:"user_id"`
	Recommend bool      `json:"recommend"`
}

type CreateInput struct {
	AppointmentID uuid.UUID
	Rating        int
	Recommend     bool
	Text          string
}

// Patch holds the fields of a partial review update. Nil means unchanged.
type Patch struct {
	Rating    *int
	Recommend *bool
	Text      *string
}
