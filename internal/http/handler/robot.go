package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/http/dto"
	"gsd.app/relay/internal/service"
)

type RobotHandler struct {
	robot service.RobotService
}

func NewRobotHandler(robot service.RobotService) *RobotHandler {
	return &RobotHandler{robot: robot}
}

// State returns the pose snapshot in the same shape the solver reads.
func (h *RobotHandler) State(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := h.robot.State(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read robot state", "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "robot state unavailable"})
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *RobotHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := h.robot.State(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read robot state", "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "robot state unavailable"})
		return
	}

	var stats *dispatch.Stats
	if s, ok := h.robot.Dispatch(); ok {
		stats = &s
	}

	c.JSON(http.StatusOK, dto.ToRobotStatusResponse(state, h.robot.Link(), stats))
}
