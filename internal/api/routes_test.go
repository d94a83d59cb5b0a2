package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codechat/internal/models"
	"codechat/internal/repository"
	"codechat/internal/service"
	"codechat/internal/storage"
	"codechat/pkg/config"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireMessage struct {
	Username string          `json:"username"`
	Message  *string         `json:"message"`
	File     *models.FileRef `json:"file"`
}

func newTestServer(t *testing.T) (*httptest.Server, *service.Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Rooms: config.RoomsConfig{
			CodeLength:      6,
			MaxCodeAttempts: 8,
			MaxHistory:      100,
			Retention:       time.Minute,
		},
		Typing:  config.TypingConfig{MinInterval: 0},
		Uploads: config.UploadsConfig{MaxBytes: 1 << 20, SigningSecret: "test-secret"},
		WS:      config.WSConfig{SendBuffer: 64, ReadLimit: 4 << 20},
	}

	db, err := storage.NewSQLiteDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Attachment{}))
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	services := service.NewServices(cfg, repository.NewRepositories(db), storage.NewBlobStoreFs(afero.NewMemMapFs()), logger)

	r := gin.New()
	SetupRoutes(r, cfg, services, logger)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = services.WebSocketManager.CloseAll(ctx)
		srv.Close()
	})
	return srv, services
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	expect(t, conn, models.EventConnectionConfirmed)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Envelope{Event: event, Data: raw}))
}

// expect 讀取事件直到遇到指定名稱，略過其他事件
func expect(t *testing.T, conn *websocket.Conn, name string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var in inbound
		require.NoError(t, conn.ReadJSON(&in), "waiting for %s", name)
		if in.Event == name {
			return in.Data
		}
	}
}

func TestChatOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	emit(t, alice, models.EventCreateRoom, models.CreateRoomRequest{Username: "alice", RoomName: "team"})
	var created models.RoomState
	require.NoError(t, json.Unmarshal(expect(t, alice, models.EventRoomCreated), &created))
	assert.Len(t, created.Code, 6)
	assert.Equal(t, "team", created.RoomName)
	assert.Empty(t, created.Messages)

	emit(t, bob, models.EventJoinWithCode, models.JoinWithCodeRequest{Username: "bob", Code: created.Code})
	var joined models.RoomState
	require.NoError(t, json.Unmarshal(expect(t, bob, models.EventRoomJoined), &joined))
	assert.Equal(t, created.Code, joined.Code)

	var user models.UserPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, models.EventUserJoined), &user))
	assert.Equal(t, "bob", user.Username)

	emit(t, alice, models.EventSendMessage, models.SendMessageRequest{Message: "hello"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg wireMessage
		require.NoError(t, json.Unmarshal(expect(t, conn, models.EventReceiveMessage), &msg))
		assert.Equal(t, "alice", msg.Username)
		require.NotNil(t, msg.Message)
		assert.Equal(t, "hello", *msg.Message)
		assert.Nil(t, msg.File)
	}

	emit(t, alice, models.EventTyping, struct{}{})
	var typing models.UserPayload
	require.NoError(t, json.Unmarshal(expect(t, bob, models.EventUserTyping), &typing))
	assert.Equal(t, "alice", typing.Username)

	resp, err := http.Get(srv.URL + "/api/rooms/" + strings.ToLower(created.Code))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary models.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, []string{"alice", "bob"}, summary.Members)
	assert.Equal(t, 1, summary.Messages)
}

func TestUploadAndDownload(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	emit(t, alice, models.EventCreateRoom, models.CreateRoomRequest{Username: "alice", RoomName: "files"})
	var created models.RoomState
	require.NoError(t, json.Unmarshal(expect(t, alice, models.EventRoomCreated), &created))
	emit(t, bob, models.EventJoinWithCode, models.JoinWithCodeRequest{Username: "bob", Code: created.Code})
	expect(t, bob, models.EventRoomJoined)

	content := []byte("meeting notes")
	emit(t, alice, models.EventUploadFile, models.UploadFileRequest{
		Filename: "notes.txt",
		FileData: "data:text/plain;base64," + base64.StdEncoding.EncodeToString(content),
	})

	var msg wireMessage
	require.NoError(t, json.Unmarshal(expect(t, bob, models.EventReceiveMessage), &msg))
	require.NotNil(t, msg.File)
	assert.Nil(t, msg.Message)
	assert.Equal(t, models.FileKindDocument, msg.File.Type)
	assert.Equal(t, int64(len(content)), msg.File.Size)
	expect(t, alice, models.EventFileUploaded)

	// 上傳者斷線後連結仍然有效
	alice.Close()
	expect(t, bob, models.EventUserLeft)

	resp, err := http.Get(srv.URL + msg.File.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)

	tampered := strings.Replace(msg.File.URL, "sig=", "sig=x", 1)
	resp2, err := http.Get(srv.URL + tampered)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestUploadErrorOnlyToUploader(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dial(t, srv)

	emit(t, alice, models.EventCreateRoom, models.CreateRoomRequest{Username: "alice", RoomName: "team"})
	expect(t, alice, models.EventRoomCreated)

	// 2 MiB 超過測試設定的 1 MiB 上限
	emit(t, alice, models.EventUploadFile, models.UploadFileRequest{
		Filename: "big.txt",
		FileData: base64.StdEncoding.EncodeToString(make([]byte, 2<<20)),
	})

	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, models.EventUploadError), &payload))
	assert.Equal(t, "file too large", payload.Message)
}

func TestRoomLookupErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		code int
	}{
		{"/api/rooms/ZZZZZZ", http.StatusNotFound},
		{"/api/rooms/abc", http.StatusBadRequest},
		{"/api/health", http.StatusOK},
		{"/nope", http.StatusNotFound},
		{"/files/01ARZ3NDEKTSV4RRFFQ69G5FAV", http.StatusForbidden},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
	}
}

func TestCloseAllDisconnectsClients(t *testing.T) {
	srv, services := newTestServer(t)
	conn := dial(t, srv)

	emit(t, conn, models.EventCreateRoom, models.CreateRoomRequest{Username: "alice", RoomName: "team"})
	expect(t, conn, models.EventRoomCreated)
	require.Eventually(t, func() bool { return services.WebSocketManager.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, services.WebSocketManager.CloseAll(ctx))

	assert.Equal(t, 0, services.WebSocketManager.ClientCount())
	assert.Equal(t, 0, services.Sessions.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestConnectionsRefusedAfterCloseAll(t *testing.T) {
	srv, services := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, services.WebSocketManager.CloseAll(ctx))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Equal(t, 0, services.WebSocketManager.ClientCount())
	assert.Equal(t, 0, services.Sessions.Count())
}
