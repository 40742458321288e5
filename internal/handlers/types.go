package handlers

import (
	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/scheduler"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SlotListResponse wraps the slot listing.
type SlotListResponse struct {
	Slots []models.PostingSlot `json:"slots"`
}

// UpdateSlotRequest is a partial slot update. Pointer fields distinguish
// "not provided" from zero values; clear_day_of_week turns a weekly slot
// back into a daily one.
type UpdateSlotRequest struct {
	TimeOfDay      *string `json:"time_of_day,omitempty"`
	DayOfWeek      *int    `json:"day_of_week,omitempty"`
	ClearDayOfWeek bool    `json:"clear_day_of_week,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

// PillarTargetsRequest replaces the owner's pillar mix.
type PillarTargetsRequest struct {
	Pillars []models.PillarTarget `json:"pillars"`
}

// PillarTargetsResponse returns the configured mix.
type PillarTargetsResponse struct {
	Pillars []models.PillarTarget `json:"pillars"`
}

// RunCycleRequest triggers an autopilot cycle. An explicit idempotency_key
// overrides the default per-minute trigger window.
type RunCycleRequest struct {
	ItemsPerBatch  int    `json:"items_per_batch"`
	BufferTarget   int    `json:"buffer_target"`
	AutoPublish    bool   `json:"auto_publish"`
	Scope          string `json:"scope,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RunCycleResponse acknowledges a dispatched (or deduplicated) cycle.
type RunCycleResponse struct {
	Triggered bool   `json:"triggered"`
	JobID     string `json:"cycle_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// StatusResponse is the autopilot status summary.
type StatusResponse struct {
	BufferSize    int                        `json:"buffer_size"`
	ActiveSlots   int                        `json:"active_slots"`
	Pillars       []scheduler.PillarStanding `json:"pillars,omitempty"`
	NextScheduled *string                    `json:"next_scheduled,omitempty"`
}

// BufferResponse lists buffered items with derived positions.
type BufferResponse struct {
	Items []models.PipelineItem `json:"items"`
	Size  int                   `json:"size"`
}

// BufferActionRequest approves or rejects a buffered item.
type BufferActionRequest struct {
	ItemID string `json:"item_id"`
	Action string `json:"action"` // "approve" or "reject"
}

// DueItemsResponse lists items whose delivery time has arrived.
type DueItemsResponse struct {
	Items []models.PipelineItem `json:"items"`
	Count int                   `json:"count"`
}

// CycleListResponse lists recent cycle jobs.
type CycleListResponse struct {
	Cycles []models.CycleJob `json:"cycles"`
}

// CreateItemRequest schedules a manually authored item.
type CreateItemRequest struct {
	Content     string  `json:"content"`
	Pillar      string  `json:"pillar,omitempty"`
	ScheduledAt *string `json:"scheduled_at,omitempty"` // RFC3339; omit to auto-resolve
	AutoPublish bool    `json:"auto_publish"`
}
