package handlers

import (
	"net/http"

	"contentops/autopilot/pkg/middleware"
)

// GetPillars returns the owner's configured pillar mix.
func GetPillars(c middleware.Context) {
	targets, err := tracker.Targets(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PillarTargetsResponse{Pillars: targets})
}

// PutPillars replaces the owner's pillar mix. Shares must sum to 100.
func PutPillars(c middleware.Context) {
	var req PillarTargetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := tracker.SetTargets(c.Request.Context(), ownerID(c), req.Pillars); err != nil {
		respondError(c, err)
		return
	}

	targets, err := tracker.Targets(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, PillarTargetsResponse{Pillars: targets})
}
