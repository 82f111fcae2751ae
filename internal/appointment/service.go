package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

const maxPurposeLen = 50

var (
	ErrWindowBusy       = apperr.Conflict("Timeslot is being booked, please retry.")
	ErrPurposeRequired  = apperr.Validation("Purpose is required.")
	ErrPurposeTooLong   = apperr.Validationf("Purpose must be at most %d characters.", maxPurposeLen)
	ErrInvalidFollowUp  = apperr.Validation("Follow-up must reference an appointment between the same doctor and patient.")
	ErrScheduledAtEmpty = apperr.Validation("scheduled_at is required.")
)

// Directory is the slice of the directory the appointment service needs.
type Directory interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

type Service struct {
	repo      Repository
	dir       Directory
	locker    redisclient.Locker
	validator *Validator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(repo Repository, dir Directory, locker redisclient.Locker, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		dir:       dir,
		locker:    locker,
		validator: NewValidator(cfg.LeadTime, cfg.Location),
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("clinic/appointment"),
		now:       time.Now,
	}
}

// WithClock replaces time.Now for the service and its validator.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.validator.WithClock(now)
	return s
}

func (s *Service) Location() *time.Location {
	return s.validator.Location()
}

// Booking

// BookAsProvider creates an appointment on the route provider's calendar.
func (s *Service) BookAsProvider(ctx context.Context, actor auth.Actor, providerID uuid.UUID, req BookingRequest) (*Appointment, error) {
	provider, err := s.dir.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{ProviderUserID: provider.UserID}, auth.ActionBookAsProvider); err != nil {
		return nil, err
	}
	patient, err := s.dir.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	return s.book(ctx, OriginProvider, provider, patient, req)
}

// BookAsPatient creates an appointment for the route patient with any provider.
func (s *Service) BookAsPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, req BookingRequest) (*Appointment, error) {
	patient, err := s.dir.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{PatientUserID: patient.UserID}, auth.ActionBookAsPatient); err != nil {
		return nil, err
	}
	provider, err := s.dir.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	return s.book(ctx, OriginPatient, provider, patient, req)
}

func (s *Service) book(ctx context.Context, origin Origin, provider *directory.Provider, patient *directory.Patient, req BookingRequest) (_ *Appointment, err error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "appointment.book", trace.WithAttributes(
		attribute.String("origin", string(origin)),
		attribute.String("provider_id", provider.ID.String()),
		attribute.String("patient_id", patient.ID.String()),
	))
	defer func() { s.finish(span, string(origin), started, err) }()

	purpose, err := checkPurpose(req.Purpose)
	if err != nil {
		return nil, err
	}
	if req.ScheduledAt.IsZero() {
		return nil, ErrScheduledAtEmpty
	}
	if req.FollowUpOf != nil {
		if err := s.checkFollowUp(ctx, *req.FollowUpOf, provider.ID, patient.ID); err != nil {
			return nil, err
		}
	}

	pre, err := s.validator.Validate(ctx, s.repo, provider.ID, req.ScheduledAt, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if !pre.Accepted {
		s.metrics.ObserveRejection(pre.Code)
		return nil, pre.Err
	}

	appt := &Appointment{
		ID:          uuid.New(),
		ProviderID:  provider.ID,
		PatientID:   patient.ID,
		Purpose:     purpose,
		AmountCents: provider.PricingCents,
		Status:      StatusWaiting,
		FollowUpOf:  req.FollowUpOf,
	}

	err = s.inWindow(ctx, provider.ID, pre, uuid.Nil, func(ctx context.Context, tx Repository, d Decision) error {
		appt.ScheduledAt = d.At
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, events.AppointmentCreated, appt, map[string]any{
			"doctor_id":    appt.ProviderID,
			"patient_id":   appt.PatientID,
			"scheduled_at": appt.ScheduledAt,
			"origin":       origin,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("provider_id", provider.ID.String()),
		zap.String("patient_id", patient.ID.String()),
		zap.Time("scheduled_at", appt.ScheduledAt),
		zap.String("origin", string(origin)),
	)
	return appt, nil
}

// inWindow runs apply under the provider's Redis day lock and inside a
// transaction that holds the provider row. The candidate is validated again
// in the transaction, so the outcome does not depend on the Redis lock. When
// Redis cannot be reached the row lock alone serializes the booking.
func (s *Service) inWindow(ctx context.Context, providerID uuid.UUID, pre Decision, exclude uuid.UUID, apply func(ctx context.Context, tx Repository, d Decision) error) error {
	locked := func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx Repository) error {
			d, err := s.revalidate(ctx, tx, providerID, pre, exclude)
			if err != nil {
				return err
			}
			return apply(ctx, tx, d)
		})
	}

	err := s.locker.WithProviderLock(ctx, providerID, pre.At, locked)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrWindowBusy
	case errors.Is(err, redisclient.ErrLockUnavailable):
		s.logger.Warn("redis lock unavailable, relying on row lock",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
		return locked(ctx)
	}
	return err
}

func (s *Service) revalidate(ctx context.Context, tx Repository, providerID uuid.UUID, pre Decision, exclude uuid.UUID) (Decision, error) {
	if err := tx.LockProvider(ctx, providerID); err != nil {
		return Decision{}, err
	}
	d, err := s.validator.Validate(ctx, tx, providerID, pre.At, exclude)
	if err != nil {
		return d, err
	}
	if !d.Accepted {
		s.metrics.ObserveRejection(d.Code)
		return d, d.Err
	}
	return d, nil
}

func (s *Service) checkFollowUp(ctx context.Context, id, providerID, patientID uuid.UUID) error {
	prev, err := s.repo.GetAppointmentByID(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return ErrInvalidFollowUp
	}
	if err != nil {
		return fmt.Errorf("load follow-up appointment: %w", err)
	}
	if prev.ProviderID != providerID || prev.PatientID != patientID {
		return ErrInvalidFollowUp
	}
	return nil
}

func checkPurpose(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrPurposeRequired
	}
	if utf8.RuneCountInString(p) > maxPurposeLen {
		return "", ErrPurposeTooLong
	}
	return p, nil
}

// Transitions

// UpdateStatus lets the owning provider confirm or complete an appointment.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.providerAppointment(ctx, actor, providerID, appointmentID, auth.ActionUpdateStatus)
	if err != nil {
		return nil, err
	}
	if err := CheckStatusUpdate(appt.Status, to); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, to)
}

func (s *Service) CancelAsProvider(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.providerAppointment(ctx, actor, providerID, appointmentID, auth.ActionCancelAsProvider)
	if err != nil {
		return nil, err
	}
	if err := CheckCancel(appt.Status); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, StatusCanceled)
}

func (s *Service) CancelAsPatient(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.patientAppointment(ctx, actor, patientID, appointmentID, auth.ActionCancelAsPatient)
	if err != nil {
		return nil, err
	}
	if err := CheckCancel(appt.Status); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, StatusCanceled)
}

func (s *Service) transition(ctx context.Context, appt *Appointment, to Status) (_ *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.transition", trace.WithAttributes(
		attribute.String("appointment_id", appt.ID.String()),
		attribute.String("from", string(appt.Status)),
		attribute.String("to", string(to)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var updated *Appointment
	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		u, err := tx.UpdateStatus(ctx, appt.ID, appt.Status, to)
		if err != nil {
			return err
		}
		updated = u
		return s.appendEvent(ctx, tx, eventFor(to), u, map[string]any{
			"from": appt.Status,
			"to":   to,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(to))
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// Reschedule moves the patient's appointment to a new instant. The new
// instant goes through the same checks as a booking; the appointment itself
// is left out of the capacity count.
func (s *Service) Reschedule(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID, at time.Time) (_ *Appointment, err error) {
	appt, err := s.patientAppointment(ctx, actor, patientID, appointmentID, auth.ActionReschedule)
	if err != nil {
		return nil, err
	}
	if err := CheckReschedule(appt.Status); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, ErrScheduledAtEmpty
	}

	started := s.now()
	ctx, span := s.tracer.Start(ctx, "appointment.reschedule", trace.WithAttributes(
		attribute.String("appointment_id", appt.ID.String()),
		attribute.String("provider_id", appt.ProviderID.String()),
	))
	defer func() { s.finish(span, "reschedule", started, err) }()

	pre, err := s.validator.Validate(ctx, s.repo, appt.ProviderID, at, appt.ID)
	if err != nil {
		return nil, err
	}
	if !pre.Accepted {
		s.metrics.ObserveRejection(pre.Code)
		return nil, pre.Err
	}

	var updated *Appointment
	err = s.inWindow(ctx, appt.ProviderID, pre, appt.ID, func(ctx context.Context, tx Repository, d Decision) error {
		u, err := tx.Reschedule(ctx, appt.ID, appt.Status, d.At)
		if err != nil {
			return err
		}
		updated = u
		return s.appendEvent(ctx, tx, events.AppointmentRescheduled, u, map[string]any{
			"from_status":  appt.Status,
			"previous_at":  appt.ScheduledAt,
			"scheduled_at": u.ScheduledAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusRescheduled))
	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", appt.ID.String()),
		zap.Time("previous_at", appt.ScheduledAt),
		zap.Time("scheduled_at", updated.ScheduledAt),
	)
	return updated, nil
}

// Reads

func (s *Service) GetForProvider(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID) (*Appointment, error) {
	return s.providerAppointment(ctx, actor, providerID, appointmentID, auth.ActionViewProviderAppointment)
}

func (s *Service) GetForPatient(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID) (*Appointment, error) {
	return s.patientAppointment(ctx, actor, patientID, appointmentID, auth.ActionViewPatientAppointment)
}

func (s *Service) ListForProvider(ctx context.Context, actor auth.Actor, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	provider, err := s.dir.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{ProviderUserID: provider.UserID}, auth.ActionViewProviderAppointment); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	out, err := s.repo.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return out, nil
}

func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	patient, err := s.dir.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{PatientUserID: patient.UserID}, auth.ActionViewPatientAppointment); err != nil {
		return nil, err
	}
	limit, offset = page(limit, offset)
	out, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return out, nil
}

// RejectModification answers generic update and delete requests. Owners are
// told the method is not allowed, everyone else is forbidden.
func (s *Service) RejectModification(ctx context.Context, actor auth.Actor, origin Origin, ownerID uuid.UUID, method string) error {
	switch origin {
	case OriginProvider:
		provider, err := s.dir.GetProviderByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.Resource{ProviderUserID: provider.UserID}, auth.ActionModifyAsProvider); err != nil {
			return err
		}
	default:
		patient, err := s.dir.GetPatientByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.Resource{PatientUserID: patient.UserID}, auth.ActionModifyAsPatient); err != nil {
			return err
		}
	}
	return apperr.MethodNotAllowed(fmt.Sprintf("Method %q not allowed.", method))
}

// DayAvailability lists the provider's windows on date with how many
// appointments each already holds.
func (s *Service) DayAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) ([]WindowAvailability, error) {
	if _, err := s.dir.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	avail, err := s.repo.LoadAvailability(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	date = date.In(s.Location())
	out := []WindowAvailability{}
	for _, slot := range avail.WindowsForDay(schedule.DayOf(date)) {
		_, booked, err := HasCapacity(ctx, s.repo, providerID, slot, date, uuid.Nil)
		if err != nil {
			return nil, fmt.Errorf("count window: %w", err)
		}
		start, end := slot.Window(date)
		out = append(out, WindowAvailability{
			Slot:      slot,
			Start:     start,
			End:       end,
			Booked:    booked,
			Remaining: max(slot.Capacity-booked, 0),
		})
	}
	return out, nil
}

// Helpers

func (s *Service) providerAppointment(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID, action auth.Action) (*Appointment, error) {
	provider, err := s.dir.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{ProviderUserID: provider.UserID}, action); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.ProviderID != providerID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) patientAppointment(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID, action auth.Action) (*Appointment, error) {
	patient, err := s.dir.GetPatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{PatientUserID: patient.UserID}, action); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) appendEvent(ctx context.Context, tx Repository, t events.Type, appt *Appointment, payload map[string]any) error {
	payload["status"] = appt.Status
	ev, err := events.New(t, appt.ID, payload)
	if err != nil {
		return err
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", t, err)
	}
	return nil
}

func (s *Service) finish(span trace.Span, origin string, started time.Time, err error) {
	outcome := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrRuleViolation), errors.Is(err, apperr.ErrValidation):
		outcome = "rejected"
	case errors.Is(err, apperr.ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	s.metrics.ObserveBooking(origin, outcome, s.now().Sub(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
