package models

import "time"

// Attachment 是已驗證並存檔的附件的資料庫記錄
type Attachment struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	RoomCode  string    `gorm:"index;size:16;not null" json:"room_code"`
	Uploader  string    `gorm:"not null" json:"uploader"`
	Filename  string    `gorm:"not null" json:"filename"`
	MimeType  string    `gorm:"size:127;not null" json:"mime_type"`
	Kind      FileKind  `gorm:"size:16;not null" json:"kind"`
	Size      int64     `json:"size"`
	Digest    string    `gorm:"index;size:64;not null" json:"digest"` // blake2b-256, hex
	CreatedAt time.Time `json:"created_at"`
}
