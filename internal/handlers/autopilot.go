package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"contentops/autopilot/internal/models"
	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/pkg/logging"
	"contentops/autopilot/pkg/middleware"
)

const (
	defaultItemsPerBatch = 3
	defaultBufferTarget  = 7
	cycleListLimit       = 50
)

// GetStatus summarizes the owner's autopilot state: buffer fill, active
// slots, pillar standings, and the next upcoming delivery.
func GetStatus(c middleware.Context) {
	ctx := c.Request.Context()
	owner := ownerID(c)

	size, err := buffer.Size(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	slots, err := st.ListActiveSlots(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	standings, err := tracker.Standings(ctx, owner, now())
	if err != nil {
		respondError(c, err)
		return
	}

	upcoming, err := st.ListOccupiedTimes(ctx, owner, now())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := StatusResponse{
		BufferSize:  size,
		ActiveSlots: len(slots),
		Pillars:     standings,
	}
	if len(upcoming) > 0 {
		next := upcoming[0].UTC().Format(time.RFC3339)
		resp.NextScheduled = &next
	}
	c.JSON(http.StatusOK, resp)
}

// RunAutopilot validates the trigger, records a cycle job, and dispatches
// it onto the queue. Triggers within the same minute window collapse onto
// one job, so a double-clicked button runs one cycle.
func RunAutopilot(c middleware.Context) {
	var req RunCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.ItemsPerBatch == 0 {
		req.ItemsPerBatch = defaultItemsPerBatch
	}
	if req.BufferTarget == 0 {
		req.BufferTarget = defaultBufferTarget
	}

	params := models.CycleParams{
		ItemsPerBatch: req.ItemsPerBatch,
		BufferTarget:  req.BufferTarget,
		AutoPublish:   req.AutoPublish,
		Scope:         req.Scope,
	}
	if err := scheduler.ValidateParams(params); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)

	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = now().UTC().Format("200601021504")
	}

	job := &models.CycleJob{
		ID:             uuid.New().String(),
		OwnerID:        owner,
		IdempotencyKey: owner + ":" + idemKey,
		Params:         params,
	}
	created, err := st.CreateCycleJob(ctx, job)
	if err != nil {
		respondError(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusAccepted, RunCycleResponse{JobID: job.ID, Status: string(job.Status), Duplicate: true})
		return
	}

	payload, err := json.Marshal(models.CycleRequest{JobID: job.ID, OwnerID: owner, Params: params})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := producer.Produce(ctx, cycleTopic, []byte(owner), payload, nil); err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"job_id":   job.ID,
			"owner_id": owner,
		}).Error("Failed to dispatch cycle request")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Cycle dispatch failed, retry shortly"})
		return
	}

	if metrics != nil {
		metrics.CyclesDispatched.WithLabelValues("dispatched").Inc()
	}
	c.JSON(http.StatusAccepted, RunCycleResponse{Triggered: true, JobID: job.ID, Status: string(models.JobPending)})
}

// GetCycles lists the owner's recent cycle jobs, newest first.
func GetCycles(c middleware.Context) {
	jobs, err := st.ListCycleJobs(c.Request.Context(), ownerID(c), cycleListLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CycleListResponse{Cycles: jobs})
}

// GetBuffer returns the buffered items in delivery order.
func GetBuffer(c middleware.Context) {
	items, err := buffer.Status(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BufferResponse{Items: items, Size: len(items)})
}

// BufferAction approves or rejects a buffered item.
func BufferAction(c middleware.Context) {
	var req BufferActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ItemID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "item_id and action are required"})
		return
	}

	ctx := c.Request.Context()
	owner := ownerID(c)

	var item *models.PipelineItem
	var err error
	switch req.Action {
	case "approve":
		item, err = buffer.Approve(ctx, req.ItemID, owner)
	case "reject":
		item, err = buffer.Reject(ctx, req.ItemID, owner)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "action must be approve or reject"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if metrics != nil {
		metrics.ItemActions.WithLabelValues(req.Action).Inc()
	}
	c.JSON(http.StatusOK, item)
}

// RetryItem requeues a failed item for immediate publication.
func RetryItem(c middleware.Context) {
	item, err := lifecycle.Retry(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if metrics != nil {
		metrics.ItemActions.WithLabelValues("retry").Inc()
	}
	c.JSON(http.StatusOK, item)
}
