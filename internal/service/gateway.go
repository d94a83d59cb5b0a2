package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"codechat/internal/models"
)

const maxMessageRunes = 5000

// Gateway 把客戶端事件轉成 Registry、SessionManager、Broadcaster 與 UploadService 的操作
type Gateway struct {
	registry    *Registry
	sessions    *SessionManager
	broadcaster *Broadcaster
	uploads     *UploadService
	logger      *slog.Logger
}

func NewGateway(registry *Registry, sessions *SessionManager, broadcaster *Broadcaster, uploads *UploadService, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry:    registry,
		sessions:    sessions,
		broadcaster: broadcaster,
		uploads:     uploads,
		logger:      logger,
	}
}

// Connect 為新連線開啟 Session 並確認連線
func (g *Gateway) Connect(peer Peer) *Session {
	s := g.sessions.Open(peer)
	s.Send(models.Event{Name: models.EventConnectionConfirmed, Data: models.Ack{}})
	g.logger.Debug("connection opened", "conn", peer.ID())
	return s
}

// Disconnect 清理 Session，若在房間內會通知其他成員
func (g *Gateway) Disconnect(s *Session) {
	g.sessions.Detach(s)
	g.logger.Debug("connection closed", "conn", s.ID())
}

// Handle 處理一個客戶端事件，錯誤只回報給發送者
func (g *Gateway) Handle(ctx context.Context, s *Session, env models.Envelope) {
	logger := g.logger.With("conn", s.ID(), "event", env.Event)

	switch env.Event {
	case models.EventTestConnection:
		s.Send(models.Event{Name: models.EventConnectionConfirmed, Data: models.Ack{}})

	case models.EventCreateRoom:
		var req models.CreateRoomRequest
		if err := decode(env.Data, &req); err != nil {
			g.joinError(logger, s, err)
			return
		}
		if err := g.CreateRoom(s, req); err != nil {
			g.joinError(logger, s, err)
		}

	case models.EventJoinWithCode:
		var req models.JoinWithCodeRequest
		if err := decode(env.Data, &req); err != nil {
			g.joinError(logger, s, err)
			return
		}
		if err := g.JoinWithCode(s, req); err != nil {
			g.joinError(logger, s, err)
		}

	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err := decode(env.Data, &req); err != nil {
			logger.Debug("ignored message", "error", err)
			return
		}
		if err := g.SendMessage(s, req); err != nil {
			logger.Debug("ignored message", "error", err)
		}

	case models.EventTyping:
		if err := g.Typing(s); err != nil {
			logger.Debug("ignored typing", "error", err)
		}

	case models.EventUploadFile:
		var req models.UploadFileRequest
		if err := decode(env.Data, &req); err != nil {
			g.uploadError(logger, s, err)
			return
		}
		if err := g.UploadFile(ctx, s, req); err != nil {
			g.uploadError(logger, s, err)
		}

	default:
		logger.Debug("unknown event")
	}
}

func (g *Gateway) CreateRoom(s *Session, req models.CreateRoomRequest) error {
	if _, err := ValidateUsername(req.Username); err != nil {
		return err
	}

	room, err := g.registry.CreateRoom(req.RoomName)
	if err != nil {
		return err
	}

	if err := g.sessions.Join(s, req.Username, room, models.EventRoomCreated); err != nil {
		g.registry.Release(room)
		return err
	}
	return nil
}

func (g *Gateway) JoinWithCode(s *Session, req models.JoinWithCodeRequest) error {
	if _, err := ValidateUsername(req.Username); err != nil {
		return err
	}

	room, err := g.registry.Lookup(req.Code)
	if err != nil {
		return err
	}
	return g.sessions.Join(s, req.Username, room, models.EventRoomJoined)
}

func (g *Gateway) SendMessage(s *Session, req models.SendMessageRequest) error {
	room := s.Room()
	if room == nil {
		return ErrNotInRoom
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return ErrMessageTooLong
	}

	_, err := g.broadcaster.AppendAndBroadcast(room, s, models.NewTextMessage(s.Username(), text))
	return err
}

func (g *Gateway) Typing(s *Session) error {
	room := s.Room()
	if room == nil {
		return ErrNotInRoom
	}
	g.broadcaster.BroadcastTyping(room, s)
	return nil
}

// UploadFile 驗證並儲存附件，成功後廣播附件訊息再回覆 file_uploaded
func (g *Gateway) UploadFile(ctx context.Context, s *Session, req models.UploadFileRequest) error {
	room := s.Room()
	if room == nil {
		return ErrNotInRoom
	}

	data, declared, err := DecodeFileData(req.FileData)
	if err != nil {
		return err
	}

	attachment, err := g.uploads.Ingest(ctx, room.Code, s.Username(), req.Filename, data, declared)
	if err != nil {
		return err
	}
	ref, err := g.uploads.FileRef(attachment)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	if _, err := g.broadcaster.AppendAndBroadcast(room, s, models.NewFileMessage(s.Username(), ref)); err != nil {
		return err
	}
	s.Send(models.Event{Name: models.EventFileUploaded, Data: models.Ack{}})
	return nil
}

func (g *Gateway) joinError(logger *slog.Logger, s *Session, err error) {
	logger.Info("join failed", "error", err)
	s.Send(models.Event{Name: models.EventJoinError, Data: models.ErrorPayload{Message: PublicMessage(err)}})
}

func (g *Gateway) uploadError(logger *slog.Logger, s *Session, err error) {
	if errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrUnsupportedType) {
		logger.Info("upload rejected", "error", err)
	} else {
		logger.Error("upload failed", "error", err)
	}
	s.Send(models.Event{Name: models.EventUploadError, Data: models.ErrorPayload{Message: PublicMessage(err)}})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
