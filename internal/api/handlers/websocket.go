package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codechat/internal/service"
)

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager *service.WebSocketManager
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
// allowedOrigins 為空時接受所有來源
func NewWebSocketHandler(wsManager *service.WebSocketManager, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// HandleWebSocket 升級 HTTP 連接並交給 WebSocketManager，直到連接關閉
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已經回覆錯誤
		return
	}

	h.wsManager.HandleConnection(c.Request.Context(), conn)
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
