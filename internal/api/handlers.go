package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
)

type appointmentHandler struct {
	svc    AppointmentService
	logger *zap.Logger
}

func (h *appointmentHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// Doctor routes

func (h *appointmentHandler) bookAsProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ProviderBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	patientID, err := parseUUIDField("patient_id", req.PatientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	at, err := parseInstant("scheduled_at", req.ScheduledAt, h.svc.Location())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	booking := appointment.BookingRequest{
		ProviderID:  providerID,
		PatientID:   patientID,
		Purpose:     req.Purpose,
		ScheduledAt: at,
	}
	if req.FollowUpOf != nil && *req.FollowUpOf != "" {
		id, err := parseUUIDField("follow_up_of", *req.FollowUpOf)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		booking.FollowUpOf = &id
	}

	appt, err := h.svc.BookAsProvider(r.Context(), auth.ActorFrom(r.Context()), providerID, booking)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *appointmentHandler) listForProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, offset := pagination(r)

	out, err := h.svc.ListForProvider(r.Context(), auth.ActorFrom(r.Context()), providerID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *appointmentHandler) getForProvider(w http.ResponseWriter, r *http.Request) {
	providerID, appointmentID, err := h.ids(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.GetForProvider(r.Context(), auth.ActorFrom(r.Context()), providerID, appointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *appointmentHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	providerID, appointmentID, err := h.ids(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req StatusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	status, ok := appointment.ParseStatus(req.Status)
	if !ok {
		h.fail(w, r, apperr.Validationf("%q is not a valid status.", req.Status))
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), auth.ActorFrom(r.Context()), providerID, appointmentID, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *appointmentHandler) cancelAsProvider(w http.ResponseWriter, r *http.Request) {
	providerID, appointmentID, err := h.ids(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.CancelAsProvider(r.Context(), auth.ActorFrom(r.Context()), providerID, appointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Patient routes

func (h *appointmentHandler) bookAsPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req PatientBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	providerID, err := parseUUIDField("doctor_id", req.DoctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	at, err := parseInstant("scheduled_at", req.ScheduledAt, h.svc.Location())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.BookAsPatient(r.Context(), auth.ActorFrom(r.Context()), patientID, appointment.BookingRequest{
		ProviderID:  providerID,
		PatientID:   patientID,
		Purpose:     req.Purpose,
		ScheduledAt: at,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *appointmentHandler) listForPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, offset := pagination(r)

	out, err := h.svc.ListForPatient(r.Context(), auth.ActorFrom(r.Context()), patientID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *appointmentHandler) getForPatient(w http.ResponseWriter, r *http.Request) {
	patientID, appointmentID, err := h.ids(r, "patientID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.GetForPatient(r.Context(), auth.ActorFrom(r.Context()), patientID, appointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *appointmentHandler) reschedule(w http.ResponseWriter, r *http.Request) {
	patientID, appointmentID, err := h.ids(r, "patientID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	at, err := parseInstant("scheduled_at", req.ScheduledAt, h.svc.Location())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), auth.ActorFrom(r.Context()), patientID, appointmentID, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *appointmentHandler) cancelAsPatient(w http.ResponseWriter, r *http.Request) {
	patientID, appointmentID, err := h.ids(r, "patientID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.svc.CancelAsPatient(r.Context(), auth.ActorFrom(r.Context()), patientID, appointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// rejectModification answers PUT, PATCH and DELETE on an appointment.
func (h *appointmentHandler) rejectModification(origin appointment.Origin, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := pathID(r, param)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.fail(w, r, h.svc.RejectModification(r.Context(), auth.ActorFrom(r.Context()), origin, ownerID, r.Method))
	}
}

// Availability

func (h *appointmentHandler) availability(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	raw := r.URL.Query().Get("date")
	if raw == "" {
		h.fail(w, r, apperr.Validation("date is required."))
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, raw, h.svc.Location())
	if err != nil {
		h.fail(w, r, apperr.Validation("date must be YYYY-MM-DD."))
		return
	}

	windows, err := h.svc.DayAvailability(r.Context(), providerID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (h *appointmentHandler) ids(r *http.Request, ownerParam string) (owner, appointmentID uuid.UUID, err error) {
	if owner, err = pathID(r, ownerParam); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if appointmentID, err = pathID(r, "appointmentID"); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return owner, appointmentID, nil
}
