package models

import "encoding/json"

// 客戶端送往伺服器的事件
const (
	EventCreateRoom     = "create_room"
	EventJoinWithCode   = "join_with_code"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventTestConnection = "test_connection"
	EventUploadFile     = "upload_file"
)

// 伺服器推送給客戶端的事件
const (
	EventConnectionConfirmed = "connection_confirmed"
	EventRoomCreated         = "room_created"
	EventRoomJoined          = "room_joined"
	EventJoinError           = "join_error"
	EventReceiveMessage      = "receive_message"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventUpdateUsers         = "update_users"
	EventUserTyping          = "user_typing"
	EventUploadError         = "upload_error"
	EventFileUploaded        = "file_uploaded"
)

// Envelope 是客戶端送來的事件
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event 是伺服器推送給客戶端的事件
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type CreateRoomRequest struct {
	Username string `json:"username"`
	RoomName string `json:"room_name"`
}

type JoinWithCodeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

// UploadFileRequest 的 file_data 可以是純 base64 或 data URL
type UploadFileRequest struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

// RoomState 是 room_created 與 room_joined 的內容
type RoomState struct {
	RoomName string    `json:"room_name"`
	Code     string    `json:"code"`
	Messages []Message `json:"messages"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserPayload struct {
	Username string `json:"username"`
}

type UsersPayload struct {
	Users []string `json:"users"`
}

type Ack struct{}
