package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
)

var (
	ErrReviewNotFound = apperr.NotFound("Review not found.")
	ErrReplyNotFound  = apperr.NotFound("Reply not found.")
)

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	// Reviews
	ReviewExists(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	CreateReview(ctx context.Context, r *Review) error
	GetReview(ctx context.Context, id uuid.UUID) (*Review, error)
	ListReviewsByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Review, error)
	UpdateReview(ctx context.Context, r *Review) error
	DeleteReview(ctx context.Context, id uuid.UUID) error

	// Replies
	CreateReply(ctx context.Context, r *Reply) error
	GetReply(ctx context.Context, id uuid.UUID) (*Reply, error)
	ListReplies(ctx context.Context, reviewID uuid.UUID) ([]Reply, error)
	UpdateReply(ctx context.Context, r *Reply) error
	DeleteReply(ctx context.Context, id uuid.UUID) error

	// Reactions
	UpsertReaction(ctx context.Context, r Reaction) (created bool, err error)
	DeleteReaction(ctx context.Context, target Target, targetID, userID uuid.UUID) error

	InsertEvent(ctx context.Context, ev events.Event) error
}
