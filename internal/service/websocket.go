package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codechat/internal/models"
	"codechat/pkg/config"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan models.Event // 消息發送通道，用於異步傳送消息
	done     chan struct{}
	once     sync.Once
}

func (c *Client) ID() string {
	return c.id
}

// Send 把事件放入發送佇列，佇列已滿時關閉連接
func (c *Client) Send(event models.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendChan <- event:
		return true
	case <-c.done:
		return false
	default:
		c.Close()
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketManager 管理所有的 WebSocket 連接
type WebSocketManager struct {
	gateway *Gateway
	cfg     config.WSConfig
	logger  *slog.Logger

	clients    map[string]*Client
	clientsMux sync.RWMutex
	closing    bool // CloseAll 之後不再接受新連接
	wg         sync.WaitGroup
}

func NewWebSocketManager(gateway *Gateway, cfg config.WSConfig, logger *slog.Logger) *WebSocketManager {
	return &WebSocketManager{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// HandleConnection 處理一個已升級的連接，直到連接關閉才返回
func (m *WebSocketManager) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	client := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		sendChan: make(chan models.Event, m.cfg.SendBuffer),
		done:     make(chan struct{}),
	}

	if !m.addClient(client) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	session := m.gateway.Connect(client)

	// 確保連接關閉時清理資源
	defer func() {
		m.gateway.Disconnect(session)
		m.removeClient(client)
		client.Close()
		m.wg.Done()
	}()

	go m.writePump(client)
	m.readPump(ctx, client, session)
}

// readPump 持續監聽並處理從客戶端接收的事件
func (m *WebSocketManager) readPump(ctx context.Context, client *Client, session *Session) {
	client.conn.SetReadLimit(m.cfg.ReadLimit)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Warn("websocket unexpected close", "conn", client.id, "error", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			m.logger.Debug("event parse error", "conn", client.id, "error", err)
			continue
		}

		m.gateway.Handle(ctx, session, env)
	}
}

// writePump 處理向客戶端發送事件的邏輯
func (m *WebSocketManager) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return

		case event := <-client.sendChan:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(event); err != nil {
				m.logger.Debug("websocket write failed", "conn", client.id, "error", err)
				return
			}

		case <-ticker.C:
			// 發送心跳包
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// addClient 在關閉中時回傳 false
func (m *WebSocketManager) addClient(client *Client) bool {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()
	if m.closing {
		return false
	}
	m.clients[client.id] = client
	m.wg.Add(1)
	return true
}

func (m *WebSocketManager) removeClient(client *Client) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()
	delete(m.clients, client.id)
}

// ClientCount 回傳目前的連接數
func (m *WebSocketManager) ClientCount() int {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return len(m.clients)
}

// CloseAll 通知所有客戶端伺服器即將關閉，並等待連接處理結束
func (m *WebSocketManager) CloseAll(ctx context.Context) error {
	m.clientsMux.Lock()
	m.closing = true
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clientsMux.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
