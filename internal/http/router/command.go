package router

import (
	"github.com/gin-gonic/gin"

	"gsd.app/relay/internal/http/handler"
)

func CommandRouter(rg *gin.RouterGroup, h *handler.CommandHandler) {
	rg.POST("/commands", h.Submit)
	rg.POST("/goods", h.SubmitGood)
	rg.GET("/queue", h.Queue)
	rg.GET("/jobs/schema", h.Schema)
}

// LegacyRouter keeps the paths older clients and the warehouse UI call.
func LegacyRouter(r gin.IRoutes, commands *handler.CommandHandler, robot *handler.RobotHandler) {
	r.GET("/robot/:order/", commands.SubmitLegacy)
	r.GET("/add", commands.SubmitGoodLegacy)
	r.GET("/robot", robot.State)
}
