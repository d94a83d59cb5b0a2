package service

import (
	"context"
	"log/slog"
	"time"

	"codechat/internal/repository"
	"codechat/internal/storage"
	"codechat/internal/utils"
	"codechat/pkg/config"
)

const purgeTimeout = 30 * time.Second

type Services struct {
	Registry         *Registry
	Sessions         *SessionManager
	Broadcaster      *Broadcaster
	Uploads          *UploadService
	Gateway          *Gateway
	WebSocketManager *WebSocketManager
	Signer           *utils.FileSigner
}

func NewServices(cfg *config.Config, repos *repository.Repositories, blobs *storage.BlobStore, logger *slog.Logger) *Services {
	signer := utils.NewFileSigner(cfg.Uploads.SigningSecret)

	registry := NewRegistry(NewRandomCodeGenerator(cfg.Rooms.CodeLength), cfg.Rooms, logger)
	broadcaster := NewBroadcaster(cfg.Typing.MinInterval, logger)
	sessions := NewSessionManager(registry, broadcaster, logger)
	uploads := NewUploadService(repos.Attachment, blobs, signer, cfg, logger)
	gateway := NewGateway(registry, sessions, broadcaster, uploads, logger)
	wsManager := NewWebSocketManager(gateway, cfg.WS, logger)

	if cfg.Uploads.PurgeWithRoom {
		registry.OnRemove(func(code string) {
			ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
			defer cancel()
			if err := uploads.PurgeRoom(ctx, code); err != nil {
				logger.Error("failed to purge room attachments", "room", code, "error", err)
			}
		})
	}

	return &Services{
		Registry:         registry,
		Sessions:         sessions,
		Broadcaster:      broadcaster,
		Uploads:          uploads,
		Gateway:          gateway,
		WebSocketManager: wsManager,
		Signer:           signer,
	}
}
