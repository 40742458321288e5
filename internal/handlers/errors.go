package handlers

import (
	"errors"
	"net/http"

	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/pkg/middleware"
)

// respondError maps domain errors onto HTTP statuses: invalid input is a
// 400, missing rows a 404, state conflicts a 409, exhausted collision
// retries a 503 the caller may retry, everything else a 500.
func respondError(c middleware.Context, err error) {
	var vErr *scheduler.ValidationError

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: vErr.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
	case errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Item is not in a state that allows this action"})
	case errors.Is(err, store.ErrSlotInUse):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Slot is referenced by upcoming items; deactivate it instead"})
	case errors.Is(err, scheduler.ErrNoActiveSlots):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "No active posting slots configured"})
	case errors.Is(err, store.ErrSlotTaken), errors.Is(err, scheduler.ErrConflict):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Scheduling conflict, retry shortly"})
	default:
		logger.WithError(err).WithField("request_id", middleware.GetRequestID(c)).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
	}
}
