package models

import (
	"time"
)

// FileKind 是附件的分類
type FileKind string

const (
	FileKindImage    FileKind = "image"
	FileKindVideo    FileKind = "video"
	FileKindDocument FileKind = "document"
)

// FileRef 是訊息中附件的描述
type FileRef struct {
	Type     FileKind `json:"type"`
	URL      string   `json:"url"`
	Filename string   `json:"filename"`
	Size     int64    `json:"size"`
}

// Message 代表房間歷史中的一則訊息，加入歷史後不可再修改
type Message struct {
	Username  string    `json:"username"`
	Text      *string   `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	File      *FileRef  `json:"file,omitempty"`
}

// NewTextMessage 創建一則純文字訊息
func NewTextMessage(username, text string) Message {
	return Message{
		Username: username,
		Text:     &text,
	}
}

// NewFileMessage 創建一則只帶附件的訊息
func NewFileMessage(username string, file FileRef) Message {
	return Message{
		Username: username,
		File:     &file,
	}
}

// Valid 檢查訊息至少帶有文字或附件
func (m Message) Valid() bool {
	return m.Text != nil || m.File != nil
}
