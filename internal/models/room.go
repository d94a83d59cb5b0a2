package models

import "time"

// RoomSummary 是房間的公開資訊
type RoomSummary struct {
	RoomName  string    `json:"room_name"`
	Code      string    `json:"code"`
	Members   []string  `json:"members"`
	Messages  int       `json:"message_count"`
	CreatedAt time.Time `json:"created_at"`
}
