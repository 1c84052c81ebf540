package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gsd.app/relay/internal/http/dto"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/service"
)

const defaultQueueLimit = 100

type CommandHandler struct {
	submissions service.SubmissionService
}

func NewCommandHandler(submissions service.SubmissionService) *CommandHandler {
	return &CommandHandler{submissions: submissions}
}

func (h *CommandHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SubmitCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	entry, err := h.submissions.Submit(ctx, req.Command)
	if err != nil {
		writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.ToJobResponse(entry))
}

// SubmitLegacy serves GET /robot/:order/, where the command is the path segment.
func (h *CommandHandler) SubmitLegacy(c *gin.Context) {
	entry, err := h.submissions.Submit(c.Request.Context(), c.Param("order"))
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ToJobResponse(entry))
}

func (h *CommandHandler) SubmitGood(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AddGoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	h.submitGood(c, req)
}

// SubmitGoodLegacy serves GET /add?name=..&temp_min=..&temp_max=..&light_min=..&light_max=..
func (h *CommandHandler) SubmitGoodLegacy(c *gin.Context) {
	var req dto.AddGoodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	h.submitGood(c, req)
}

func (h *CommandHandler) submitGood(c *gin.Context, req dto.AddGoodRequest) {
	entry, err := h.submissions.SubmitGood(c.Request.Context(), req.Fields())
	if err != nil {
		writeSubmitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ToJobResponse(entry))
}

func (h *CommandHandler) Queue(c *gin.Context) {
	ctx := c.Request.Context()

	limit := defaultQueueLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	snap, err := h.submissions.Pending(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read queue", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to read queue"})
		return
	}

	c.JSON(http.StatusOK, dto.ToQueueResponse(snap))
}

func (h *CommandHandler) Schema(c *gin.Context) {
	c.JSON(http.StatusOK, model.WireSchema())
}
