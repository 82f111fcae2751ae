package appointment

import (
	"slices"
	"strings"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
)

// RESCHEDULED is an active state equivalent to WAITING: it can be confirmed,
// canceled or rescheduled again and it counts against capacity.
var transitions = map[Status][]Status{
	StatusWaiting:     {StatusConfirmed, StatusCanceled, StatusRescheduled},
	StatusRescheduled: {StatusConfirmed, StatusCanceled, StatusRescheduled},
	StatusConfirmed:   {StatusCompleted, StatusCanceled, StatusRescheduled},
	StatusPaid:        {StatusCompleted, StatusRescheduled},
	StatusCanceled:    nil,
	StatusCompleted:   nil,
}

// statusUpdateTargets are the states reachable through update_status.
var statusUpdateTargets = []Status{StatusConfirmed, StatusCompleted}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

func lower(s Status) string {
	return strings.ToLower(string(s))
}

// CheckStatusUpdate validates a provider driven status change.
func CheckStatusUpdate(from, to Status) error {
	if !slices.Contains(statusUpdateTargets, to) {
		return apperr.Violationf("Invalid status: %s can only be set through its dedicated operation.", to)
	}
	if from == to {
		return apperr.Violationf("Appointment is already %s.", lower(to))
	}
	if !CanTransition(from, to) {
		return apperr.Violationf("Cannot change appointment status from %s to %s.", from, to)
	}
	return nil
}

func CheckCancel(from Status) error {
	switch from {
	case StatusCanceled:
		return apperr.Violation("Appointment is already canceled.")
	case StatusCompleted:
		return apperr.Violation("Completed appointments cannot be canceled.")
	case StatusPaid:
		return apperr.Violation("Paid appointments cannot be canceled.")
	}
	if !CanTransition(from, StatusCanceled) {
		return apperr.Violationf("Cannot cancel a %s appointment.", lower(from))
	}
	return nil
}

func CheckReschedule(from Status) error {
	switch from {
	case StatusCanceled:
		return apperr.Violation("Canceled appointments cannot be rescheduled.")
	case StatusCompleted:
		return apperr.Violation("Completed appointments cannot be rescheduled.")
	}
	if !CanTransition(from, StatusRescheduled) {
		return apperr.Violationf("Cannot reschedule a %s appointment.", lower(from))
	}
	return nil
}

// eventFor maps the target status of a transition to the event it emits.
func eventFor(to Status) events.Type {
	switch to {
	case StatusConfirmed:
		return events.AppointmentConfirmed
	case StatusCompleted:
		return events.AppointmentCompleted
	case StatusCanceled:
		return events.AppointmentCanceled
	case StatusRescheduled:
		return events.AppointmentRescheduled
	default:
		return events.AppointmentCreated
	}
}
