package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
)

const reviewAppointmentConstraint = "reviews_appointment_id_key"

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

const reviewSelect = `
	SELECT r.id, r.appointment_id, a.provider_id, a.patient_id, r.rating, r.recommend, r.body,
	       r.created_at, r.updated_at
	FROM reviews r
	JOIN appointments a ON a.id = r.appointment_id`

func scanReview(row pgx.Row) (*Review, error) {
	var r Review
	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.ProviderID,
		&r.PatientID,
		&r.Rating,
		&r.Recommend,
		&r.Text,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanReply(row pgx.Row) (*Reply, error) {
	var r Reply
	err := row.Scan(&r.ID, &r.ReviewID, &r.UserID, &r.Text, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	return &r, nil
}

func reactionTable(t Target) (string, error) {
	switch t {
	case TargetReview:
		return "review_reactions", nil
	case TargetReply:
		return "reply_reactions", nil
	}
	return "", fmt.Errorf("unknown reaction target %q", t)
}

// Interface methods

func (r *PgRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&PgRepository{db: tx})
	})
}

func (r *PgRepository) ReviewExists(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviews WHERE appointment_id = $1)`, appointmentID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) CreateReview(ctx context.Context, rv *Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO reviews (id, appointment_id, rating, recommend, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, rv.ID, rv.AppointmentID, rv.Rating, rv.Recommend, rv.Text).Scan(&rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, reviewAppointmentConstraint) {
			return ErrAlreadyReviewed
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *PgRepository) GetReview(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.db.QueryRow(ctx, reviewSelect+` WHERE r.id = $1`, id))
}

func (r *PgRepository) ListReviewsByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Review, error) {
	rows, err := r.db.Query(ctx, reviewSelect+`
		WHERE a.provider_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	out := []Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateReview(ctx context.Context, rv *Review) error {
	err := r.db.QueryRow(ctx, `
		UPDATE reviews
		SET rating = $2, recommend = $3, body = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, rv.ID, rv.Rating, rv.Recommend, rv.Text).Scan(&rv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReviewNotFound
		}
		return fmt.Errorf("update review: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteReview(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *PgRepository) CreateReply(ctx context.Context, rp *Reply) error {
	if rp.ID == uuid.Nil {
		rp.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO review_replies (id, review_id, user_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, rp.ID, rp.ReviewID, rp.UserID, rp.Text).Scan(&rp.CreatedAt, &rp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (r *PgRepository) GetReply(ctx context.Context, id uuid.UUID) (*Reply, error) {
	return scanReply(r.db.QueryRow(ctx, `
		SELECT id, review_id, user_id, body, created_at, updated_at
		FROM review_replies
		WHERE id = $1
	`, id))
}

func (r *PgRepository) ListReplies(ctx context.Context, reviewID uuid.UUID) ([]Reply, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, review_id, user_id, body, created_at, updated_at
		FROM review_replies
		WHERE review_id = $1
		ORDER BY created_at
	`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	out := []Reply{}
	for rows.Next() {
		rp, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rp)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateReply(ctx context.Context, rp *Reply) error {
	err := r.db.QueryRow(ctx, `
		UPDATE review_replies SET body = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, rp.ID, rp.Text).Scan(&rp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReplyNotFound
		}
		return fmt.Errorf("update reply: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteReply(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM review_replies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReplyNotFound
	}
	return nil
}

// UpsertReaction inserts the reaction or overwrites the recommend flag of the
// existing one. created is true when a row was inserted.
func (r *PgRepository) UpsertReaction(ctx context.Context, re Reaction) (bool, error) {
	table, err := reactionTable(re.Target)
	if err != nil {
		return false, err
	}

	var created bool
	err = r.db.QueryRow(ctx, `
		INSERT INTO `+table+` (target_id, user_id, recommend)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, target_id)
		DO UPDATE SET recommend = EXCLUDED.recommend, updated_at = now()
		RETURNING (xmax = 0)
	`, re.TargetID, re.UserID, re.Recommend).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert %s reaction: %w", re.Target, err)
	}
	return created, nil
}

func (r *PgRepository) DeleteReaction(ctx context.Context, target Target, targetID, userID uuid.UUID) error {
	table, err := reactionTable(target)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM `+table+` WHERE target_id = $1 AND user_id = $2`, targetID, userID); err != nil {
		return fmt.Errorf("delete %s reaction: %w", target, err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev events.Event) error {
	return events.Append(ctx, r.db, ev)
}
