package handlers

import (
	"net/http"

	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/middleware"
)

// ListSlots returns all of the owner's posting slots.
func ListSlots(c middleware.Context) {
	slots, err := registry.ListSlots(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SlotListResponse{Slots: slots})
}

// CreateSlot adds a posting slot. The slot number is assigned server-side
// and never reused.
func CreateSlot(c middleware.Context) {
	var input scheduler.SlotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	slot, err := registry.CreateSlot(c.Request.Context(), ownerID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	if metrics != nil {
		metrics.SlotOperations.WithLabelValues("create").Inc()
	}
	c.JSON(http.StatusCreated, slot)
}

// GetSlot returns one slot.
func GetSlot(c middleware.Context) {
	slot, err := registry.GetSlot(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// UpdateSlot applies a partial slot update, including activation toggles.
func UpdateSlot(c middleware.Context) {
	var req UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	patch := store.SlotPatch{
		TimeOfDay:      req.TimeOfDay,
		DayOfWeek:      req.DayOfWeek,
		ClearDayOfWeek: req.ClearDayOfWeek,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	}
	slot, err := registry.UpdateSlot(c.Request.Context(), c.Param("id"), ownerID(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}

	if metrics != nil {
		metrics.SlotOperations.WithLabelValues("update").Inc()
	}
	c.JSON(http.StatusOK, slot)
}

// DeleteSlot removes a slot with no upcoming items.
func DeleteSlot(c middleware.Context) {
	if err := registry.DeleteSlot(c.Request.Context(), c.Param("id"), ownerID(c)); err != nil {
		respondError(c, err)
		return
	}

	if metrics != nil {
		metrics.SlotOperations.WithLabelValues("delete").Inc()
	}
	c.Status(http.StatusNoContent)
}
