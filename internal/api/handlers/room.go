package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codechat/internal/service"
)

// RoomHandler 提供房間的唯讀查詢
type RoomHandler struct {
	registry *service.Registry
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(registry *service.Registry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

// GetRoom 依代碼回傳房間名稱、成員與訊息數量
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.registry.Lookup(c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up room"})
		}
		return
	}

	c.JSON(http.StatusOK, room.Summary())
}
