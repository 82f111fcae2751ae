package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

const appointmentColumns = `id, provider_id, patient_id, purpose, amount_cents, status,
	scheduled_at, follow_up_of, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.Purpose,
		&a.AmountCents,
		&status,
		&a.ScheduledAt,
		&a.FollowUpOf,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Interface methods

func (r *PgRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&PgRepository{db: tx})
	})
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query provider appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query patient appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) LoadAvailability(ctx context.Context, providerID uuid.UUID) (schedule.Availability, error) {
	return schedule.LoadAvailability(ctx, r.db, providerID)
}

// LockProvider takes a row lock on the provider for the rest of the
// transaction. Windows of one provider can overlap or touch, so every booking
// and reschedule for the provider serializes on this row rather than on a
// time slot. A missing row is not an error; the validator rejects the booking
// afterwards.
func (r *PgRepository) LockProvider(ctx context.Context, providerID uuid.UUID) error {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock provider: %w", err)
	}
	return nil
}

func (r *PgRepository) CountActiveInWindow(ctx context.Context, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status <> 'CANCELED'
		  AND id <> $4
	`, providerID, from, until, exclude).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count window appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, purpose, amount_cents, status, scheduled_at, follow_up_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.ProviderID, a.PatientID, a.Purpose, a.AmountCents, string(a.Status), a.ScheduledAt, a.FollowUpOf).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// UpdateStatus applies from -> to only if the row is still in from. A lost
// race returns ErrStatusChanged.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from))

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	return a, err
}

func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, from Status, at time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'RESCHEDULED', scheduled_at = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+appointmentColumns, id, at, string(from))

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	return a, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev events.Event) error {
	return events.Append(ctx, r.db, ev)
}
