package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codechat/internal/service"
)

// Health 回傳服務狀態與目前的房間、連線數量
func Health(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       services.Registry.Count(),
			"connections": services.WebSocketManager.ClientCount(),
		})
	}
}
