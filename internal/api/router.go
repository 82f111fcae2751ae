package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/review"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type AppointmentService interface {
	Location() *time.Location
	BookAsProvider(ctx context.Context, actor auth.Actor, providerID uuid.UUID, req appointment.BookingRequest) (*appointment.Appointment, error)
	BookAsPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, req appointment.BookingRequest) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	CancelAsProvider(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	CancelAsPatient(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID, at time.Time) (*appointment.Appointment, error)
	GetForProvider(ctx context.Context, actor auth.Actor, providerID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	GetForPatient(ctx context.Context, actor auth.Actor, patientID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	ListForProvider(ctx context.Context, actor auth.Actor, providerID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListForPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	RejectModification(ctx context.Context, actor auth.Actor, origin appointment.Origin, ownerID uuid.UUID, method string) error
	DayAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) ([]appointment.WindowAvailability, error)
}

type ScheduleService interface {
	CreateTimeSlot(ctx context.Context, actor auth.Actor, providerID uuid.UUID, start, end schedule.Clock, capacity int) (*schedule.TimeSlot, error)
	ListTimeSlots(ctx context.Context, providerID uuid.UUID) ([]schedule.TimeSlot, error)
	DeleteTimeSlot(ctx context.Context, actor auth.Actor, providerID, slotID uuid.UUID) error
	AddScheduleEntry(ctx context.Context, actor auth.Actor, providerID uuid.UUID, day schedule.Day, slotIDs []uuid.UUID) (*schedule.Entry, error)
	DeleteScheduleEntry(ctx context.Context, actor auth.Actor, providerID, entryID uuid.UUID) error
	GetAvailability(ctx context.Context, providerID uuid.UUID) (schedule.Availability, error)
}

type ReviewService interface {
	ListReviews(ctx context.Context, actor auth.Actor, providerID uuid.UUID, limit, offset int) ([]review.Review, error)
	GetReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) (*review.Review, error)
	CreateReview(ctx context.Context, actor auth.Actor, providerID uuid.UUID, in review.CreateInput) (*review.Review, error)
	UpdateReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, p review.Patch) (*review.Review, error)
	DeleteReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) error
	ListReplies(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) ([]review.Reply, error)
	GetReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) (*review.Reply, error)
	CreateReply(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, text string) (*review.Reply, error)
	UpdateReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID, text string) (*review.Reply, error)
	DeleteReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) error
	ReactToReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, recommend bool) (*review.Reaction, error)
	UnreactReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) error
	ReactToReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID, recommend bool) (*review.Reaction, error)
	UnreactReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) error
}

type RouterConfig struct {
	Appointments   AppointmentService
	Schedule       ScheduleService
	Reviews        ReviewService
	PgPool         Pinger
	Redis          *redis.Client
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Operations
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	appts := &appointmentHandler{svc: cfg.Appointments, logger: logger}
	sched := &scheduleHandler{svc: cfg.Schedule, logger: logger}
	reviews := &reviewHandler{svc: cfg.Reviews, logger: logger}
	limited := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/availability", appts.availability)

			r.Route("/appointments", func(r chi.Router) {
				r.With(limited).Post("/", appts.bookAsProvider)
				r.Get("/", appts.listForProvider)

				r.Route("/{appointmentID}", func(r chi.Router) {
					r.Get("/", appts.getForProvider)
					reject := appts.rejectModification(appointment.OriginProvider, "doctorID")
					r.Put("/", reject)
					r.Patch("/", reject)
					r.Delete("/", reject)
					r.With(limited).Patch("/update_status", appts.updateStatus)
					r.With(limited).Delete("/cancel", appts.cancelAsProvider)
				})
			})

			r.Route("/timeslots", func(r chi.Router) {
				r.Post("/", sched.createTimeSlot)
				r.Get("/", sched.listTimeSlots)
				r.Delete("/{slotID}", sched.deleteTimeSlot)
			})

			r.Route("/schedule", func(r chi.Router) {
				r.Post("/", sched.createEntry)
				r.Get("/", sched.getSchedule)
				r.Delete("/{entryID}", sched.deleteEntry)
			})

			r.Route("/reviews", func(r chi.Router) {
				r.Get("/", reviews.list)
				r.Post("/", reviews.create)

				r.Route("/{reviewID}", func(r chi.Router) {
					r.Get("/", reviews.get)
					r.Patch("/", reviews.update)
					r.Delete("/", reviews.delete)
					r.Post("/react", reviews.react)
					r.Delete("/react", reviews.unreact)

					r.Get("/replies", reviews.listReplies)
					r.Post("/replies", reviews.createReply)
					r.Route("/replies/{replyID}", func(r chi.Router) {
						r.Get("/", reviews.getReply)
						r.Patch("/", reviews.updateReply)
						r.Delete("/", reviews.deleteReply)
						r.Post("/react", reviews.reactReply)
						r.Delete("/react", reviews.unreactReply)
					})
				})
			})
		})

		r.Route("/patients/{patientID}/appointments", func(r chi.Router) {
			r.With(limited).Post("/", appts.bookAsPatient)
			r.Get("/", appts.listForPatient)

			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", appts.getForPatient)
				reject := appts.rejectModification(appointment.OriginPatient, "patientID")
				r.Put("/", reject)
				r.Patch("/", reject)
				r.Delete("/", reject)
				r.With(limited).Patch("/reschedule", appts.reschedule)
				r.With(limited).Delete("/cancel", appts.cancelAsPatient)
			})
		})
	})

	return r
}
