package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"contentops/autopilot/internal/models"
)

const slotColumns = `id, owner_id, slot_number, time_of_day, day_of_week, timezone, is_active, created_at, updated_at`

func scanSlot(row interface{ Scan(...interface{}) error }) (*models.PostingSlot, error) {
	var slot models.PostingSlot
	var dow sql.NullInt32
	err := row.Scan(&slot.ID, &slot.OwnerID, &slot.SlotNumber, &slot.TimeOfDay,
		&dow, &slot.Timezone, &slot.IsActive, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dow.Valid {
		d := int(dow.Int32)
		slot.DayOfWeek = &d
	}
	return &slot, nil
}

// ListSlots returns all slots for an owner ordered by slot number. That
// ordering doubles as the deterministic tie-break during slot resolution.
func (s *Store) ListSlots(ctx context.Context, ownerID string) ([]models.PostingSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM posting_slots
		WHERE owner_id = $1
		ORDER BY slot_number ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.PostingSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

// ListActiveSlots returns active slots only, ordered by slot number.
func (s *Store) ListActiveSlots(ctx context.Context, ownerID string) ([]models.PostingSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM posting_slots
		WHERE owner_id = $1 AND is_active = true
		ORDER BY slot_number ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.PostingSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

// GetSlot fetches a single slot scoped to its owner.
func (s *Store) GetSlot(ctx context.Context, id, ownerID string) (*models.PostingSlot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+slotColumns+`
		FROM posting_slots
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)

	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// CreateSlot inserts a slot, assigning the next per-owner slot number.
// Numbers are never reused: the subselect takes max(existing)+1 and the
// unique (owner_id, slot_number) index turns a concurrent race into
// ErrSlotTaken so the caller can retry.
func (s *Store) CreateSlot(ctx context.Context, slot *models.PostingSlot) error {
	var dow sql.NullInt32
	if slot.DayOfWeek != nil {
		dow = sql.NullInt32{Int32: int32(*slot.DayOfWeek), Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posting_slots (id, owner_id, slot_number, time_of_day, day_of_week, timezone, is_active, created_at, updated_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(slot_number), 0) + 1 FROM posting_slots WHERE owner_id = $2),
			$3, $4, $5, true, NOW(), NOW())
		RETURNING slot_number, created_at, updated_at
	`, slot.ID, slot.OwnerID, slot.TimeOfDay, dow, slot.Timezone).
		Scan(&slot.SlotNumber, &slot.CreatedAt, &slot.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

// SlotPatch describes a partial slot update.
type SlotPatch struct {
	TimeOfDay      *string
	DayOfWeek      *int
	ClearDayOfWeek bool
	Timezone       *string
	IsActive       *bool
}

// UpdateSlot applies a partial update scoped to the owner.
func (s *Store) UpdateSlot(ctx context.Context, id, ownerID string, patch SlotPatch) (*models.PostingSlot, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id, ownerID}

	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.TimeOfDay != nil {
		sets = append(sets, "time_of_day = "+next(*patch.TimeOfDay))
	}
	if patch.ClearDayOfWeek {
		sets = append(sets, "day_of_week = NULL")
	} else if patch.DayOfWeek != nil {
		sets = append(sets, "day_of_week = "+next(*patch.DayOfWeek))
	}
	if patch.Timezone != nil {
		sets = append(sets, "timezone = "+next(*patch.Timezone))
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = "+next(*patch.IsActive))
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE posting_slots
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1 AND owner_id = $2
		RETURNING `+slotColumns+`
	`, args...)

	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// DeleteSlot removes a slot unless a future non-terminal item still
// references it. Deactivation is the expected path; deletion is a cleanup
// operation for never-used slots.
func (s *Store) DeleteSlot(ctx context.Context, id, ownerID string) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pipeline_items
			WHERE slot_id = $1 AND owner_id = $2
			  AND status IN ('draft', 'reviewing', 'scheduled', 'publish_failed')
			  AND scheduled_at > NOW()
		)
	`, id, ownerID).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return ErrSlotInUse
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM posting_slots WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
