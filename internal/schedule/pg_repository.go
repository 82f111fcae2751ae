package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
)

const entryDayConstraint = "schedule_entries_provider_day_key"

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

const microsPerMinute = int64(time.Minute / time.Microsecond)

func clockParam(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c.Minutes()) * microsPerMinute, Valid: true}
}

func clockFromPg(t pgtype.Time) Clock {
	return ClockFromMinutes(int(t.Microseconds / microsPerMinute))
}

func scanTimeSlot(row pgx.Row) (TimeSlot, error) {
	var s TimeSlot
	var start, end pgtype.Time

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&start,
		&end,
		&s.Capacity,
		&s.CreatedAt,
	)
	if err != nil {
		return TimeSlot{}, err
	}

	s.Start = clockFromPg(start)
	s.End = clockFromPg(end)
	return s, nil
}

func collectTimeSlots(rows pgx.Rows) ([]TimeSlot, error) {
	defer rows.Close()

	out := []TimeSlot{}
	for rows.Next() {
		s, err := scanTimeSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Interface methods

func (r *PgRepository) CreateTimeSlot(ctx context.Context, slot *TimeSlot) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO time_slots (id, provider_id, start_time, end_time, capacity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, slot.ID, slot.ProviderID, clockParam(slot.Start), clockParam(slot.End), slot.Capacity).Scan(&slot.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert time slot: %w", err)
	}
	return nil
}

func (r *PgRepository) ListTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, start_time, end_time, capacity, created_at
		FROM time_slots
		WHERE provider_id = $1
		ORDER BY start_time, end_time
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query time slots: %w", err)
	}
	return collectTimeSlots(rows)
}

func (r *PgRepository) GetTimeSlotsByIDs(ctx context.Context, ids []uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, start_time, end_time, capacity, created_at
		FROM time_slots
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query time slots by id: %w", err)
	}
	return collectTimeSlots(rows)
}

func (r *PgRepository) DeleteTimeSlot(ctx context.Context, providerID, slotID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM time_slots WHERE id = $1 AND provider_id = $2`, slotID, providerID)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeSlotNotFound
	}
	return nil
}

func (r *PgRepository) EntryExists(ctx context.Context, providerID uuid.UUID, day Day) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM schedule_entries WHERE provider_id = $1 AND day = $2)
	`, providerID, string(day)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schedule entry: %w", err)
	}
	return exists, nil
}

// CreateEntry inserts the entry and its slot links in one transaction. A
// duplicate day surfaces as ErrDayTaken through the unique index.
func (r *PgRepository) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO schedule_entries (id, provider_id, day)
			VALUES ($1, $2, $3)
			RETURNING created_at
		`, entry.ID, entry.ProviderID, string(entry.Day)).Scan(&entry.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err, entryDayConstraint) {
				return ErrDayTaken
			}
			return fmt.Errorf("insert schedule entry: %w", err)
		}

		for _, slot := range entry.Slots {
			if _, err := tx.Exec(ctx, `
				INSERT INTO schedule_entry_slots (entry_id, slot_id) VALUES ($1, $2)
			`, entry.ID, slot.ID); err != nil {
				return fmt.Errorf("link slot %s: %w", slot.ID, err)
			}
		}
		return nil
	})
}

func (r *PgRepository) DeleteEntry(ctx context.Context, providerID, entryID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM schedule_entries WHERE id = $1 AND provider_id = $2`, entryID, providerID)
	if err != nil {
		return fmt.Errorf("delete schedule entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *PgRepository) LoadAvailability(ctx context.Context, providerID uuid.UUID) (Availability, error) {
	return LoadAvailability(ctx, r.db, providerID)
}

// LoadAvailability reads a provider's schedule through q, which may be a
// transaction owned by another repository.
func LoadAvailability(ctx context.Context, q db.DBTX, providerID uuid.UUID) (Availability, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id, e.day, e.created_at,
		       s.id, s.start_time, s.end_time, s.capacity, s.created_at
		FROM schedule_entries e
		LEFT JOIN schedule_entry_slots es ON es.entry_id = e.id
		LEFT JOIN time_slots s ON s.id = es.slot_id
		WHERE e.provider_id = $1
		ORDER BY e.created_at, e.id, s.start_time
	`, providerID)
	if err != nil {
		return Availability{}, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	avail := Availability{ProviderID: providerID, Entries: []Entry{}}
	index := map[uuid.UUID]int{}

	for rows.Next() {
		var (
			entryID      uuid.UUID
			day          string
			entryCreated time.Time
			slotID       *uuid.UUID
			start, end   pgtype.Time
			capacity     *int
			slotCreated  *time.Time
		)
		if err := rows.Scan(&entryID, &day, &entryCreated, &slotID, &start, &end, &capacity, &slotCreated); err != nil {
			return Availability{}, fmt.Errorf("scan availability: %w", err)
		}

		i, ok := index[entryID]
		if !ok {
			avail.Entries = append(avail.Entries, Entry{
				ID:         entryID,
				ProviderID: providerID,
				Day:        Day(day),
				Slots:      []TimeSlot{},
				CreatedAt:  entryCreated,
			})
			i = len(avail.Entries) - 1
			index[entryID] = i
		}

		if slotID == nil {
			continue
		}
		slot := TimeSlot{
			ID:         *slotID,
			ProviderID: providerID,
			Start:      clockFromPg(start),
			End:        clockFromPg(end),
		}
		if capacity != nil {
			slot.Capacity = *capacity
		}
		if slotCreated != nil {
			slot.CreatedAt = *slotCreated
		}
		avail.Entries[i].Slots = append(avail.Entries[i].Slots, slot)
	}

	if err := rows.Err(); err != nil {
		return Availability{}, fmt.Errorf("iterate availability: %w", err)
	}
	return avail, nil
}
