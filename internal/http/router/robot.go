package router

import (
	"github.com/gin-gonic/gin"

	"gsd.app/relay/internal/http/handler"
)

func RobotRouter(rg *gin.RouterGroup, h *handler.RobotHandler, stream *handler.StatusStreamHandler) {
	rg.GET("/state", h.State)
	rg.GET("/status", h.Status)
	rg.GET("/status/stream", stream.Stream)
}
