package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"gsd.app/relay/internal/http/handler"
	"gsd.app/relay/internal/service"
)

type RouterConfig struct {
	Redis        *redis.Client // optional, enables the status stream
	StatusStream string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	commandHandler := handler.NewCommandHandler(services.Submissions())
	robotHandler := handler.NewRobotHandler(services.Robot())
	streamHandler := handler.NewStatusStreamHandler(cfg.Redis, cfg.StatusStream)

	LegacyRouter(router, commandHandler, robotHandler)

	v1 := router.Group("/api/v1")
	{
		CommandRouter(v1, commandHandler)
		RobotRouter(v1.Group("/robot"), robotHandler, streamHandler)
	}
}
