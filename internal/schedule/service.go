package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
)

var (
	ErrUnauthorizedSlot = apperr.Violation("Unauthorized slot.")
	ErrDayTaken         = apperr.Violation("Schedule already created for this day.")
	ErrNoSlots          = apperr.Validation("At least one time slot is required.")
	ErrSlotOrder        = apperr.Violation("Start time must be before end time.")
	ErrSlotCapacity     = apperr.Violation("Capacity must be at least 1.")
)

// Providers is the slice of the directory the schedule service needs.
type Providers interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
}

type Service struct {
	repo      Repository
	providers Providers
	logger    *zap.Logger
}

func NewService(repo Repository, providers Providers, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		providers: providers,
		logger:    logger,
	}
}

// ValidateTimeSlot rejects windows that are empty, inverted or cross midnight.
func ValidateTimeSlot(start, end Clock, capacity int) error {
	if !start.Before(end) {
		return ErrSlotOrder
	}
	if capacity < 1 {
		return ErrSlotCapacity
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, providerID uuid.UUID) error {
	provider, err := s.providers.GetProviderByID(ctx, providerID)
	if err != nil {
		return err
	}
	return auth.Authorize(actor, auth.Resource{ProviderUserID: provider.UserID}, auth.ActionManageSchedule)
}

func (s *Service) CreateTimeSlot(ctx context.Context, actor auth.Actor, providerID uuid.UUID, start, end Clock, capacity int) (*TimeSlot, error) {
	if err := s.authorize(ctx, actor, providerID); err != nil {
		return nil, err
	}
	if capacity == 0 {
		capacity = 1
	}
	if err := ValidateTimeSlot(start, end, capacity); err != nil {
		return nil, err
	}

	slot := &TimeSlot{
		ProviderID: providerID,
		Start:      start,
		End:        end,
		Capacity:   capacity,
	}
	if err := s.repo.CreateTimeSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create time slot: %w", err)
	}

	s.logger.Info("time slot created",
		zap.String("provider_id", providerID.String()),
		zap.String("slot_id", slot.ID.String()),
		zap.Stringer("start", start),
		zap.Stringer("end", end),
		zap.Int("capacity", capacity),
	)
	return slot, nil
}

func (s *Service) ListTimeSlots(ctx context.Context, providerID uuid.UUID) ([]TimeSlot, error) {
	if _, err := s.providers.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListTimeSlots(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

func (s *Service) DeleteTimeSlot(ctx context.Context, actor auth.Actor, providerID, slotID uuid.UUID) error {
	if err := s.authorize(ctx, actor, providerID); err != nil {
		return err
	}
	return s.repo.DeleteTimeSlot(ctx, providerID, slotID)
}

// AddScheduleEntry binds day to slotIDs for the provider. Every slot must
// belong to the provider and the day must not already have an entry.
func (s *Service) AddScheduleEntry(ctx context.Context, actor auth.Actor, providerID uuid.UUID, day Day, slotIDs []uuid.UUID) (*Entry, error) {
	if err := s.authorize(ctx, actor, providerID); err != nil {
		return nil, err
	}
	if _, ok := ParseDay(string(day)); !ok {
		return nil, apperr.Validationf("%q is not a valid day.", day)
	}
	if len(slotIDs) == 0 {
		return nil, ErrNoSlots
	}

	ids := dedupe(slotIDs)
	slots, err := s.repo.GetTimeSlotsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load time slots: %w", err)
	}
	if len(slots) != len(ids) {
		return nil, ErrUnauthorizedSlot
	}
	for _, slot := range slots {
		if slot.ProviderID != providerID {
			return nil, ErrUnauthorizedSlot
		}
	}

	exists, err := s.repo.EntryExists(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDayTaken
	}

	entry := &Entry{
		ProviderID: providerID,
		Day:        day,
		Slots:      slots,
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDayTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create schedule entry: %w", err)
	}

	s.logger.Info("schedule entry created",
		zap.String("provider_id", providerID.String()),
		zap.String("day", string(day)),
		zap.Int("slots", len(slots)),
	)
	return entry, nil
}

func (s *Service) DeleteScheduleEntry(ctx context.Context, actor auth.Actor, providerID, entryID uuid.UUID) error {
	if err := s.authorize(ctx, actor, providerID); err != nil {
		return err
	}
	return s.repo.DeleteEntry(ctx, providerID, entryID)
}

func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID) (Availability, error) {
	if _, err := s.providers.GetProviderByID(ctx, providerID); err != nil {
		return Availability{}, err
	}
	avail, err := s.repo.LoadAvailability(ctx, providerID)
	if err != nil {
		return Availability{}, fmt.Errorf("load availability: %w", err)
	}
	return avail, nil
}

// WindowsForDay returns the provider's slots for day, empty when the day has
// no entry.
func (s *Service) WindowsForDay(ctx context.Context, providerID uuid.UUID, day Day) ([]TimeSlot, error) {
	avail, err := s.GetAvailability(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return avail.WindowsForDay(day), nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
