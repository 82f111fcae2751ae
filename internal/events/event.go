package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentCreated     Type = "appointment.created"
	AppointmentConfirmed   Type = "appointment.confirmed"
	AppointmentCompleted   Type = "appointment.completed"
	AppointmentCanceled    Type = "appointment.canceled"
	AppointmentRescheduled Type = "appointment.rescheduled"
	ReviewCreated          Type = "review.created"
	ReplyCreated           Type = "reply.created"
)

// Event is a row of the event log. It is written in the same transaction as
// the state change it describes and published later by the Deliverer.
type Event struct {
	ID          int64           `json:"id"`
	Type        Type            `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	Attempts    int             `json:"-"`
}

func New(t Type, aggregateID uuid.UUID, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		Type:        t,
		AggregateID: aggregateID,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
