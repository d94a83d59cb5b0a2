package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"

	"codechat/internal/api"
	"codechat/internal/models"
	"codechat/internal/repository"
	"codechat/internal/service"
	"codechat/internal/storage"
	"codechat/pkg/config"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	// 初始化資料庫連接
	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 自動遷移資料庫結構，只有附件記錄需要持久化
	if err := db.AutoMigrate(&models.Attachment{}); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	blobs, err := storage.NewBlobStore(cfg.Uploads.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	// 初始化 repositories 與 services
	repos := repository.NewRepositories(db)
	services := service.NewServices(cfg, repos, blobs, logger)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go services.Registry.Run(janitorCtx)

	// 設置 Gin 路由
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api.SetupRoutes(r, cfg, services, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Address, "db", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"websocket": func(ctx context.Context) error {
				return services.WebSocketManager.CloseAll(ctx)
			},
			"janitor": func(ctx context.Context) error {
				stopJanitor()
				return nil
			},
		},
	)

	exitCode := <-wait
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	logger.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
