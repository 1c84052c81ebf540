package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/http/dto"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/service"
)

// writeSubmitError maps submission failures to responses. Parse and
// validation problems are the caller's fault; anything else is ours.
func writeSubmitError(c *gin.Context, err error) {
	var parseErr *command.ParseError
	var validationErr *model.ValidationError

	switch {
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &parseErr):
		resp := dto.ErrorResponse{Error: err.Error(), Kind: string(parseErr.Kind), Field: parseErr.Field}
		if parseErr.Pos >= 0 {
			pos := parseErr.Pos
			resp.Pos = &pos
		}
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Kind:  string(validationErr.Kind),
			Field: validationErr.Field,
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to enqueue job"})
	}
}
