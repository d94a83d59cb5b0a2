package service

import "errors"

// 回報給發起者的錯誤，不會廣播到房間
var (
	ErrInvalidUsername = errors.New("username must be at least 2 characters")
	ErrInvalidCode     = errors.New("invalid room code")
	ErrRoomNotFound    = errors.New("room not found")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInternal        = errors.New("internal error")
)

var (
	ErrNotInRoom      = errors.New("not in a room")
	ErrSessionClosed  = errors.New("session closed")
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
	ErrInvalidPayload = errors.New("invalid payload")
)

var publicErrors = []error{
	ErrInvalidUsername,
	ErrInvalidCode,
	ErrRoomNotFound,
	ErrFileTooLarge,
	ErrUnsupportedType,
	ErrNotInRoom,
	ErrInvalidPayload,
}

// PublicMessage 將錯誤轉成可以送給客戶端的訊息，內部細節只寫進日誌
func PublicMessage(err error) string {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "something went wrong, please try again"
}
