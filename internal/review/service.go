package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
)

const maxTextLen = 150

var (
	ErrAlreadyReviewed = apperr.Violation("Appointment has already been reviewed.")
	ErrNotCompleted    = apperr.Violation("Only completed appointments can be reviewed.")
	ErrWrongProvider   = apperr.Violation("Appointment does not belong to this doctor.")
	ErrRating          = apperr.Validation("Rating must be between 1 and 5.")
	ErrTextTooLong     = apperr.Validationf("Text must be at most %d characters.", maxTextLen)
	ErrReplyEmpty      = apperr.Validation("Reply text is required.")
)

// Appointments looks up the appointment a review is written for.
type Appointments interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Directory interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

type Service struct {
	repo   Repository
	appts  Appointments
	dir    Directory
	logger *zap.Logger
}

func NewService(repo Repository, appts Appointments, dir Directory, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		appts:  appts,
		dir:    dir,
		logger: logger,
	}
}

// Reviews

func (s *Service) ListReviews(ctx context.Context, actor auth.Actor, providerID uuid.UUID, limit, offset int) ([]Review, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if _, err := s.dir.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.repo.ListReviewsByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

func (s *Service) GetReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) (*Review, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	return s.review(ctx, providerID, reviewID)
}

// CreateReview records the patient's review of a completed appointment with
// the route provider. An appointment takes at most one review.
func (s *Service) CreateReview(ctx context.Context, actor auth.Actor, providerID uuid.UUID, in CreateInput) (*Review, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if _, err := s.dir.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	appt, err := s.appts.GetAppointmentByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, appt.PatientID); err != nil {
		return nil, err
	}
	if appt.ProviderID != providerID {
		return nil, ErrWrongProvider
	}
	if appt.Status != appointment.StatusCompleted {
		return nil, ErrNotCompleted
	}

	text, err := checkReview(in.Rating, in.Text)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ReviewExists(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyReviewed
	}

	rv := &Review{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		PatientID:     appt.PatientID,
		Rating:        in.Rating,
		Recommend:     in.Recommend,
		Text:          text,
	}
	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.CreateReview(ctx, rv); err != nil {
			return err
		}
		ev, err := events.New(events.ReviewCreated, rv.ID, map[string]any{
			"appointment_id": rv.AppointmentID,
			"doctor_id":      rv.ProviderID,
			"rating":         rv.Rating,
			"recommend":      rv.Recommend,
		})
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return nil, err
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.logger.Info("review created",
		zap.String("review_id", rv.ID.String()),
		zap.String("appointment_id", rv.AppointmentID.String()),
		zap.Int("rating", rv.Rating),
	)
	return rv, nil
}

func (s *Service) UpdateReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, p Patch) (*Review, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	rv, err := s.review(ctx, providerID, reviewID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, actor, rv.PatientID); err != nil {
		return nil, err
	}

	if p.Rating != nil {
		rv.Rating = *p.Rating
	}
	if p.Recommend != nil {
		rv.Recommend = *p.Recommend
	}
	if p.Text != nil {
		rv.Text = *p.Text
	}
	if rv.Text, err = checkReview(rv.Rating, rv.Text); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateReview(ctx, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

func (s *Service) DeleteReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) error {
	if !actor.Authenticated() {
		return auth.ErrUnauthenticated
	}
	rv, err := s.review(ctx, providerID, reviewID)
	if err != nil {
		return err
	}
	if err := s.authorizePatient(ctx, actor, rv.PatientID); err != nil {
		return err
	}
	return s.repo.DeleteReview(ctx, rv.ID)
}

// Replies

func (s *Service) ListReplies(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) ([]Reply, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if _, err := s.review(ctx, providerID, reviewID); err != nil {
		return nil, err
	}
	return s.repo.ListReplies(ctx, reviewID)
}

func (s *Service) GetReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) (*Reply, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	return s.reply(ctx, providerID, reviewID, replyID)
}

// CreateReply lets any authenticated user answer a review.
func (s *Service) CreateReply(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, text string) (*Reply, error) {
	if err := auth.Authorize(actor, auth.Resource{}, auth.ActionReply); err != nil {
		return nil, err
	}
	if _, err := s.review(ctx, providerID, reviewID); err != nil {
		return nil, err
	}
	text, err := checkReply(text)
	if err != nil {
		return nil, err
	}

	rp := &Reply{
		ID:       uuid.New(),
		ReviewID: reviewID,
		UserID:   actor.UserID,
		Text:     text,
	}
	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		if err := tx.CreateReply(ctx, rp); err != nil {
			return err
		}
		ev, err := events.New(events.ReplyCreated, rp.ID, map[string]any{
			"review_id": rp.ReviewID,
			"user_id":   rp.UserID,
		})
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return rp, nil
}

func (s *Service) UpdateReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID, text string) (*Reply, error) {
	rp, err := s.authoredReply(ctx, actor, providerID, reviewID, replyID)
	if err != nil {
		return nil, err
	}
	if rp.Text, err = checkReply(text); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateReply(ctx, rp); err != nil {
		return nil, err
	}
	return rp, nil
}

func (s *Service) DeleteReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) error {
	rp, err := s.authoredReply(ctx, actor, providerID, reviewID, replyID)
	if err != nil {
		return err
	}
	return s.repo.DeleteReply(ctx, rp.ID)
}

// Reactions

// ReactToReview sets the actor's like or dislike on a review, replacing any
// earlier reaction of theirs.
func (s *Service) ReactToReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID, recommend bool) (*Reaction, error) {
	if err := auth.Authorize(actor, auth.Resource{}, auth.ActionReact); err != nil {
		return nil, err
	}
	if _, err := s.review(ctx, providerID, reviewID); err != nil {
		return nil, err
	}
	return s.react(ctx, Reaction{Target: TargetReview, TargetID: reviewID, UserID: actor.UserID, Recommend: recommend})
}

func (s *Service) UnreactReview(ctx context.Context, actor auth.Actor, providerID, reviewID uuid.UUID) error {
	if err := auth.Authorize(actor, auth.Resource{}, auth.ActionReact); err != nil {
		return err
	}
	if _, err := s.review(ctx, providerID, reviewID); err != nil {
		return err
	}
	return s.repo.DeleteReaction(ctx, TargetReview, reviewID, actor.UserID)
}

func (s *Service) ReactToReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID, recommend bool) (*Reaction, error) {
	if err := auth.Authorize(actor, auth.Resource{}, auth.ActionReact); err != nil {
		return nil, err
	}
	if _, err := s.reply(ctx, providerID, reviewID, replyID); err != nil {
		return nil, err
	}
	return s.react(ctx, Reaction{Target: TargetReply, TargetID: replyID, UserID: actor.UserID, Recommend: recommend})
}

func (s *Service) UnreactReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) error {
	if err := auth.Authorize(actor, auth.Resource{}, auth.ActionReact); err != nil {
		return err
	}
	if _, err := s.reply(ctx, providerID, reviewID, replyID); err != nil {
		return err
	}
	return s.repo.DeleteReaction(ctx, TargetReply, replyID, actor.UserID)
}

func (s *Service) react(ctx context.Context, re Reaction) (*Reaction, error) {
	created, err := s.repo.UpsertReaction(ctx, re)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("reaction saved",
		zap.String("target", string(re.Target)),
		zap.String("target_id", re.TargetID.String()),
		zap.Bool("recommend", re.Recommend),
		zap.Bool("created", created),
	)
	return &re, nil
}

// Helpers

// review loads a review and checks it belongs to the route provider.
func (s *Service) review(ctx context.Context, providerID, reviewID uuid.UUID) (*Review, error) {
	if _, err := s.dir.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	rv, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if rv.ProviderID != providerID {
		return nil, ErrReviewNotFound
	}
	return rv, nil
}

func (s *Service) reply(ctx context.Context, providerID, reviewID, replyID uuid.UUID) (*Reply, error) {
	if _, err := s.review(ctx, providerID, reviewID); err != nil {
		return nil, err
	}
	rp, err := s.repo.GetReply(ctx, replyID)
	if err != nil {
		return nil, err
	}
	if rp.ReviewID != reviewID {
		return nil, ErrReplyNotFound
	}
	return rp, nil
}

func (s *Service) authoredReply(ctx context.Context, actor auth.Actor, providerID, reviewID, replyID uuid.UUID) (*Reply, error) {
	if !actor.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	rp, err := s.reply(ctx, providerID, reviewID, replyID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.Resource{AuthorUserID: rp.UserID}, auth.ActionModifyReply); err != nil {
		return nil, err
	}
	return rp, nil
}

func (s *Service) authorizePatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID) error {
	patient, err := s.dir.GetPatientByID(ctx, patientID)
	if err != nil {
		return err
	}
	return auth.Authorize(actor, auth.Resource{PatientUserID: patient.UserID}, auth.ActionWriteReview)
}

func checkReview(rating int, text string) (string, error) {
	if rating < 1 || rating > 5 {
		return "", ErrRating
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxTextLen {
		return "", ErrTextTooLong
	}
	return text, nil
}

func checkReply(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrReplyEmpty
	}
	if utf8.RuneCountInString(text) > maxTextLen {
		return "", ErrTextTooLong
	}
	return text, nil
}
