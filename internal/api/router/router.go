package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"signal-notifier/internal/api/handlers/channel"
	"signal-notifier/internal/api/handlers/notification"
	"signal-notifier/internal/middlewares"
)

func New(notifHandler *notification.Handler, channelHandler *channel.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	e.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, ginext.H{"status": "ok"})
	})

	api := e.Group("/api/notify")
	{
		api.POST("/", notifHandler.Create)
		api.GET("/", notifHandler.GetQueue)
		api.GET("/failed", notifHandler.GetFailed)
		api.GET("/stats", notifHandler.GetStats)
		api.GET("/logs", notifHandler.GetLogs)
		api.GET("/:id", notifHandler.Get)
		api.GET("/:id/status", notifHandler.GetStatus)
		api.DELETE("/:id", notifHandler.Cancel)
		api.POST("/:id/retry", notifHandler.Retry)
	}

	channels := e.Group("/api/channels")
	{
		channels.GET("/", channelHandler.List)
		channels.POST("/", channelHandler.Create)
		channels.PUT("/:id", channelHandler.Update)
		channels.POST("/:id/test", channelHandler.Test)
	}

	return e
}
