package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/middleware"
)

// manualInsertAttempts bounds re-resolution for auto-resolved manual items.
const manualInsertAttempts = 3

// CreateItem schedules a manually authored item. With an explicit
// scheduled_at the time is taken as-is (if free and in the future); without
// one the next free slot occurrence is resolved.
func CreateItem(c middleware.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content is required"})
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)

	item := &models.PipelineItem{
		ID:          uuid.New().String(),
		OwnerID:     owner,
		Pillar:      req.Pillar,
		Content:     req.Content,
		Status:      models.StatusScheduled,
		AutoPublish: req.AutoPublish,
	}

	if req.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "scheduled_at must be RFC3339"})
			return
		}
		if !at.After(now()) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "scheduled_at must be in the future"})
			return
		}
		item.ScheduledAt = &at
		if err := st.CreateItem(ctx, item); err != nil {
			if errors.Is(err, store.ErrSlotTaken) {
				c.JSON(http.StatusConflict, ErrorResponse{Error: "That time is already taken"})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
		return
	}

	slots, err := st.ListActiveSlots(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	occupied, err := st.ListOccupiedTimes(ctx, owner, now())
	if err != nil {
		respondError(c, err)
		return
	}
	takenSet := make(map[int64]bool, len(occupied))
	for _, t := range occupied {
		takenSet[t.Unix()] = true
	}

	after := now()
	for attempt := 0; attempt < manualInsertAttempts; attempt++ {
		at, slot, err := scheduler.ResolveNext(slots, after, func(t time.Time) bool { return takenSet[t.Unix()] })
		if err != nil {
			respondError(c, err)
			return
		}
		item.ScheduledAt = &at
		item.SlotID = &slot.ID

		err = st.CreateItem(ctx, item)
		if err == nil {
			c.JSON(http.StatusCreated, item)
			return
		}
		if !errors.Is(err, store.ErrSlotTaken) {
			respondError(c, err)
			return
		}
		takenSet[at.Unix()] = true
		after = at
	}
	respondError(c, scheduler.ErrConflict)
}

// GetItem returns one pipeline item.
func GetItem(c middleware.Context) {
	item, err := st.GetItem(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// dueListLimit caps one read on the service surface.
const dueListLimit = 100

// GetDueItems lists items across owners whose delivery time has arrived,
// oldest first. Served on the service-token surface for peer services and
// ops tooling; it has no owner scope.
func GetDueItems(c middleware.Context) {
	items, err := st.ListDue(c.Request.Context(), now(), dueListLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DueItemsResponse{Items: items, Count: len(items)})
}
