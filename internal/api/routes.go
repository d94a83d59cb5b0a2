package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"codechat/internal/api/handlers"
	"codechat/internal/middleware"
	"codechat/internal/service"
	"codechat/pkg/config"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, services *service.Services, logger *slog.Logger) {
	// 初始化 handlers
	wsHandler := handlers.NewWebSocketHandler(services.WebSocketManager, cfg.Server.AllowedOrigins)
	roomHandler := handlers.NewRoomHandler(services.Registry)
	fileHandler := handlers.NewFileHandler(services.Uploads, logger)

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	// WebSocket 連接點，所有聊天事件都經由這條連線
	r.GET("/ws", wsHandler.HandleWebSocket)

	// 附件下載，需要有效的簽名
	r.GET("/files/:id", middleware.FileSignature(services.Signer), fileHandler.Download)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.Health(services))
		api.GET("/rooms/:code", roomHandler.GetRoom)
	}
}
