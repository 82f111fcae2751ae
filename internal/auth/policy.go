package auth

import (
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

var (
	ErrUnauthenticated = apperr.Unauthenticated("Authentication credentials were not provided.")
	ErrForbidden       = apperr.Forbidden("You do not have permission to perform this action.")
)

type Action string

const (
	ActionBookAsProvider          Action = "appointment.book_as_provider"
	ActionBookAsPatient           Action = "appointment.book_as_patient"
	ActionViewProviderAppointment Action = "appointment.view_as_provider"
	ActionViewPatientAppointment  Action = "appointment.view_as_patient"
	ActionModifyAsProvider        Action = "appointment.modify_as_provider"
	ActionModifyAsPatient         Action = "appointment.modify_as_patient"
	ActionUpdateStatus            Action = "appointment.update_status"
	ActionCancelAsProvider        Action = "appointment.cancel_as_provider"
	ActionCancelAsPatient         Action = "appointment.cancel_as_patient"
	ActionReschedule              Action = "appointment.reschedule"
	ActionManageSchedule          Action = "schedule.manage"
	ActionWriteReview             Action = "review.write"
	ActionReply                   Action = "reply.create"
	ActionModifyReply             Action = "reply.modify"
	ActionReact                   Action = "reaction.write"
)

// Resource carries the owners of the thing being acted on. Zero ids mean
// "no owner of that kind".
type Resource struct {
	ProviderUserID uuid.UUID
	PatientUserID  uuid.UUID
	AuthorUserID   uuid.UUID
}

type ownership int

const (
	anyOwner ownership = iota
	providerOwner
	patientOwner
	authorOwner
)

type grant map[Role]ownership

func everyone() grant {
	return grant{RolePatient: anyOwner, RoleDoctor: anyOwner, RoleAdmin: anyOwner}
}

var policy = map[Action]grant{
	ActionBookAsProvider:          {RoleDoctor: providerOwner},
	ActionBookAsPatient:           {RolePatient: patientOwner},
	ActionViewProviderAppointment: {RoleDoctor: providerOwner, RoleAdmin: anyOwner},
	ActionViewPatientAppointment:  {RolePatient: patientOwner, RoleAdmin: anyOwner},
	ActionModifyAsProvider:        {RoleDoctor: providerOwner},
	ActionModifyAsPatient:         {RolePatient: patientOwner},
	ActionUpdateStatus:            {RoleDoctor: providerOwner},
	ActionCancelAsProvider:        {RoleDoctor: providerOwner},
	ActionCancelAsPatient:         {RolePatient: patientOwner},
	ActionReschedule:              {RolePatient: patientOwner},
	ActionManageSchedule:          {RoleDoctor: providerOwner},
	ActionWriteReview:             {RolePatient: patientOwner},
	ActionReply:                   everyone(),
	ActionModifyReply:             {RolePatient: authorOwner, RoleDoctor: authorOwner, RoleAdmin: authorOwner},
	ActionReact:                   everyone(),
}

// Authorize decides whether actor may perform action on res.
func Authorize(actor Actor, res Resource, action Action) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}

	g, ok := policy[action]
	if !ok {
		return ErrForbidden
	}
	own, ok := g[actor.Role]
	if !ok {
		return ErrForbidden
	}

	var owner uuid.UUID
	switch own {
	case anyOwner:
		return nil
	case providerOwner:
		owner = res.ProviderUserID
	case patientOwner:
		owner = res.PatientUserID
	case authorOwner:
		owner = res.AuthorUserID
	}

	if owner == uuid.Nil || owner != actor.UserID {
		return ErrForbidden
	}
	return nil
}
