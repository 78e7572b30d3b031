package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thereayou/circlechat/internal/handlers"
	"github.com/thereayou/circlechat/internal/metrics"
	"github.com/thereayou/circlechat/internal/middleware"
)

type routes struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	gather  prometheus.Gatherer
	auth    middleware.Authenticator
	health  func(ctx context.Context) error
	chats   *handlers.ChatHandler
	rooms   *handlers.RoomHandler
	ws      *handlers.WebSocketHandler
}

func NewRouter(r routes) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(r.log, r.metrics))

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.health(ctx); err != nil {
			r.log.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gather, promhttp.HandlerOpts{})))

	router.GET("/ws", middleware.WSAuthMiddleware(r.auth), r.ws.HandleWebSocket)

	api := router.Group("/api/v1", middleware.AuthMiddleware(r.auth))
	{
		chats := api.Group("/chats")
		chats.GET("", r.chats.GetChats)
		chats.POST("/read", r.chats.MarkAsRead)
		chats.GET("/private/:userId", r.chats.GetPrivateHistory)
		chats.DELETE("/private/:userId", r.chats.DeletePrivateChat)
		chats.DELETE("/private/:userId/all", r.chats.DeletePrivateChatForAll)
		chats.GET("/circle/:circleId", r.chats.GetCircleHistory)
		chats.DELETE("/circle/:circleId", r.chats.DeleteCircleChat)
		chats.DELETE("/circle/:circleId/all", r.chats.DeleteCircleChatForAll)

		circles := api.Group("/circles")
		circles.GET("/:id/members", r.rooms.GetMembers)
		circles.GET("/:id/active-members", r.rooms.GetActiveMembers)
	}

	return router
}
