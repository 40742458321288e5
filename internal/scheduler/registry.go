package scheduler

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

// timeOfDayPattern accepts 24h "HH:MM" only.
var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// createSlotAttempts bounds retries when concurrent creates race on the
// per-owner slot number.
const createSlotAttempts = 3

// Registry manages an owner's posting slot templates.
type Registry struct {
	store  *store.Store
	logger logging.Logger
}

// NewRegistry creates a slot registry.
func NewRegistry(s *store.Store, logger logging.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// SlotInput is the caller-supplied slot definition.
type SlotInput struct {
	TimeOfDay string `json:"time_of_day"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	Timezone  string `json:"timezone"`
}

func validateSlotFields(timeOfDay string, dayOfWeek *int, timezone string) error {
	if !timeOfDayPattern.MatchString(timeOfDay) {
		return NewValidationError("time_of_day", "must be HH:MM in 24-hour time")
	}
	if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
		return NewValidationError("day_of_week", "must be 0 (Sunday) through 6 (Saturday)")
	}
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return NewValidationError("timezone", "must be a valid IANA timezone identifier")
	}
	return nil
}

// CreateSlot validates and persists a new slot. Slot numbers are assigned
// server-side; a concurrent create for the same owner can race on the next
// number, so the insert retries a bounded number of times.
func (r *Registry) CreateSlot(ctx context.Context, ownerID string, input SlotInput) (*models.PostingSlot, error) {
	if err := validateSlotFields(input.TimeOfDay, input.DayOfWeek, input.Timezone); err != nil {
		return nil, err
	}

	slot := &models.PostingSlot{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		TimeOfDay: input.TimeOfDay,
		DayOfWeek: input.DayOfWeek,
		Timezone:  input.Timezone,
		IsActive:  true,
	}

	var err error
	for attempt := 1; attempt <= createSlotAttempts; attempt++ {
		err = r.store.CreateSlot(ctx, slot)
		if !errors.Is(err, store.ErrSlotTaken) {
			break
		}
		r.logger.WithFields(logging.Fields{
			"owner_id": ownerID,
			"attempt":  attempt,
		}).Warn("Slot number race, retrying create")
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// UpdateSlot validates and applies a partial slot update.
func (r *Registry) UpdateSlot(ctx context.Context, id, ownerID string, patch store.SlotPatch) (*models.PostingSlot, error) {
	if patch.TimeOfDay != nil && !timeOfDayPattern.MatchString(*patch.TimeOfDay) {
		return nil, NewValidationError("time_of_day", "must be HH:MM in 24-hour time")
	}
	if patch.DayOfWeek != nil && (*patch.DayOfWeek < 0 || *patch.DayOfWeek > 6) {
		return nil, NewValidationError("day_of_week", "must be 0 (Sunday) through 6 (Saturday)")
	}
	if patch.Timezone != nil {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil || *patch.Timezone == "" {
			return nil, NewValidationError("timezone", "must be a valid IANA timezone identifier")
		}
	}
	return r.store.UpdateSlot(ctx, id, ownerID, patch)
}

// ListSlots returns all of an owner's slots.
func (r *Registry) ListSlots(ctx context.Context, ownerID string) ([]models.PostingSlot, error) {
	return r.store.ListSlots(ctx, ownerID)
}

// GetSlot returns one slot.
func (r *Registry) GetSlot(ctx context.Context, id, ownerID string) (*models.PostingSlot, error) {
	return r.store.GetSlot(ctx, id, ownerID)
}

// DeleteSlot removes a slot. Slots referenced by future items cannot be
// deleted; deactivate instead.
func (r *Registry) DeleteSlot(ctx context.Context, id, ownerID string) error {
	return r.store.DeleteSlot(ctx, id, ownerID)
}
