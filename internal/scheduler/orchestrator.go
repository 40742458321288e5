package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contentops/autopilot/internal/capability"
	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/logging"
)

// insertAttempts bounds re-resolution when a concurrent writer takes the
// resolved time between resolution and insert.
const insertAttempts = 3

// Orchestrator runs autopilot cycles: it tops the buffer up to its target
// by generating drafts, assigning pillars, and resolving posting times.
type Orchestrator struct {
	store     *store.Store
	generator capability.DraftGenerator
	tracker   *MixTracker
	logger    logging.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(s *store.Store, gen capability.DraftGenerator, tracker *MixTracker, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:     s,
		generator: gen,
		tracker:   tracker,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateParams checks cycle parameters before dispatch so a bad trigger
// is rejected at the API instead of failing inside the worker.
func ValidateParams(params models.CycleParams) error {
	if params.ItemsPerBatch < 1 || params.ItemsPerBatch > 10 {
		return NewValidationError("items_per_batch", "must be between 1 and 10")
	}
	if params.BufferTarget < 1 || params.BufferTarget > 20 {
		return NewValidationError("buffer_target", "must be between 1 and 20")
	}
	return nil
}

// RunCycle executes one autopilot cycle for an owner under the per-owner
// lock, so concurrent triggers serialize instead of double-filling the
// buffer. It returns how many items were created; on error that count
// covers the items persisted before the failure.
func (o *Orchestrator) RunCycle(ctx context.Context, ownerID string, params models.CycleParams) (int, error) {
	if err := ValidateParams(params); err != nil {
		return 0, err
	}

	created := 0
	err := o.store.WithOwnerLock(ctx, ownerID, func(ctx context.Context) error {
		var err error
		created, err = o.runLocked(ctx, ownerID, params)
		return err
	})
	return created, err
}

func (o *Orchestrator) runLocked(ctx context.Context, ownerID string, params models.CycleParams) (int, error) {
	now := o.now()

	current, err := o.store.CountBuffered(ctx, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("count buffer: %w", err)
	}

	needed := params.BufferTarget - current
	if needed > params.ItemsPerBatch {
		needed = params.ItemsPerBatch
	}
	if needed <= 0 {
		o.logger.WithFields(logging.Fields{
			"owner_id":      ownerID,
			"buffer_size":   current,
			"buffer_target": params.BufferTarget,
		}).Info("Buffer at target, nothing to create")
		return 0, nil
	}

	slots, err := o.store.ListActiveSlots(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list slots: %w", err)
	}
	if len(slots) == 0 {
		return 0, ErrNoActiveSlots
	}

	occupied, err := o.store.ListOccupiedTimes(ctx, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("list occupied times: %w", err)
	}
	takenSet := make(map[int64]bool, len(occupied))
	for _, t := range occupied {
		takenSet[t.Unix()] = true
	}
	taken := func(t time.Time) bool { return takenSet[t.Unix()] }

	status := models.StatusReviewing
	if params.AutoPublish {
		status = models.StatusScheduled
	}

	created := 0
	after := now
	for i := 0; i < needed; i++ {
		// Pillar standing is recomputed per item: each persisted item
		// shifts the realized mix, so consecutive items can serve
		// different pillars.
		pillar, err := o.tracker.NextPillar(ctx, ownerID, now)
		if err != nil {
			return created, fmt.Errorf("pick pillar: %w", err)
		}

		draft, err := o.generator.Generate(ctx, capability.GenerateRequest{OwnerID: ownerID, Pillar: pillar})
		if err != nil {
			// Items already persisted this cycle stay; the cycle
			// reports partial progress with the failure.
			return created, fmt.Errorf("generate draft: %w", err)
		}

		item, err := o.persistItem(ctx, ownerID, pillar, draft.Content, status, params.AutoPublish, slots, after, taken)
		if err != nil {
			return created, err
		}

		takenSet[item.ScheduledAt.Unix()] = true
		after = *item.ScheduledAt
		created++

		o.logger.WithFields(logging.Fields{
			"owner_id":     ownerID,
			"item_id":      item.ID,
			"pillar":       pillar,
			"scheduled_at": item.ScheduledAt.Format(time.RFC3339),
			"status":       item.Status,
		}).Info("Autopilot item created")
	}
	return created, nil
}

// persistItem resolves a posting time and inserts the item. A unique-index
// collision means another writer took the instant after resolution; the
// colliding time is marked taken and resolution re-runs, bounded.
func (o *Orchestrator) persistItem(ctx context.Context, ownerID, pillar, content string, status models.ItemStatus, autoPublish bool, slots []models.PostingSlot, after time.Time, taken func(time.Time) bool) (*models.PipelineItem, error) {
	for attempt := 0; attempt < insertAttempts; attempt++ {
		at, slot, err := ResolveNext(slots, after, taken)
		if err != nil {
			return nil, err
		}

		item := &models.PipelineItem{
			ID:          uuid.New().String(),
			OwnerID:     ownerID,
			SlotID:      &slot.ID,
			Pillar:      pillar,
			Content:     content,
			Status:      status,
			ScheduledAt: &at,
			IsBuffer:    true,
			AutoPublish: autoPublish,
		}

		err = o.store.CreateItem(ctx, item)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, store.ErrSlotTaken) {
			return nil, fmt.Errorf("persist item: %w", err)
		}

		o.logger.WithFields(logging.Fields{
			"owner_id":     ownerID,
			"scheduled_at": at.Format(time.RFC3339),
			"attempt":      attempt + 1,
		}).Warn("Posting time collision, re-resolving")
		after = at
	}
	return nil, ErrConflict
}
