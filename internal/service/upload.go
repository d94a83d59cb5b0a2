package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"

	"codechat/internal/models"
	"codechat/internal/repository"
	"codechat/internal/storage"
	"codechat/internal/utils"
	"codechat/pkg/config"
)

const defaultFilename = "file"

// allowedTypes 是可上傳的 MIME 類型與其分類
var allowedTypes = map[string]models.FileKind{
	"image/jpeg":         models.FileKindImage,
	"image/png":          models.FileKindImage,
	"image/gif":          models.FileKindImage,
	"video/mp4":          models.FileKindVideo,
	"video/webm":         models.FileKindVideo,
	"application/pdf":    models.FileKindDocument,
	"text/plain":         models.FileKindDocument,
	"application/msword": models.FileKindDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": models.FileKindDocument,
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// UploadService 驗證、儲存附件並產生可獨立於連線存取的網址
type UploadService struct {
	repo      repository.AttachmentRepository
	blobs     *storage.BlobStore
	signer    *utils.FileSigner
	maxBytes  int64
	publicURL string
	logger    *slog.Logger

	// digestLocks 讓「寫入檔案並新增記錄」與「計算引用並刪除檔案」互斥
	digestLocks [64]sync.Mutex
}

func NewUploadService(repo repository.AttachmentRepository, blobs *storage.BlobStore, signer *utils.FileSigner, cfg *config.Config, logger *slog.Logger) *UploadService {
	return &UploadService{
		repo:      repo,
		blobs:     blobs,
		signer:    signer,
		maxBytes:  cfg.Uploads.MaxBytes,
		publicURL: strings.TrimRight(cfg.Server.PublicURL, "/"),
		logger:    logger,
	}
}

// DecodeFileData 解析 base64 或 data URL，回傳資料與 data URL 宣告的 MIME 類型
func DecodeFileData(fileData string) ([]byte, string, error) {
	payload := strings.TrimSpace(fileData)
	declared := ""

	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("%w: malformed data url", ErrInvalidPayload)
		}
		header := payload[len("data:"):comma]
		payload = payload[comma+1:]

		params := strings.Split(header, ";")
		declared = params[0]
		isBase64 := false
		for _, p := range params[1:] {
			if p == "base64" {
				isBase64 = true
			}
		}
		if !isBase64 {
			data, err := url.PathUnescape(payload)
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			return []byte(data), declared, nil
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: file_data is not base64", ErrInvalidPayload)
		}
	}
	return data, declared, nil
}

// Ingest 先檢查大小再檢查類型，通過後才寫入儲存
func (u *UploadService) Ingest(ctx context.Context, roomCode, uploader, filename string, data []byte, declaredMIME string) (*models.Attachment, error) {
	if int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), u.maxBytes)
	}

	filename = sanitizeFilename(filename)
	mimeType := resolveMIME(filename, data, declaredMIME)
	kind, ok := allowedTypes[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	unlock := u.lockDigest(storage.Digest(data))
	defer unlock()

	digest, err := u.blobs.Put(data)
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	attachment := &models.Attachment{
		ID:        ulid.Make().String(),
		RoomCode:  roomCode,
		Uploader:  uploader,
		Filename:  filename,
		MimeType:  mimeType,
		Kind:      kind,
		Size:      int64(len(data)),
		Digest:    digest,
		CreatedAt: time.Now(),
	}
	if err := u.repo.Create(ctx, attachment); err != nil {
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}

	u.logger.Info("attachment stored", "room", roomCode, "user", uploader, "id", attachment.ID, "mime", mimeType, "size", attachment.Size)
	return attachment, nil
}

// FileRef 產生訊息中使用的附件描述，網址帶有簽名
func (u *UploadService) FileRef(attachment *models.Attachment) (models.FileRef, error) {
	token, err := u.signer.GenerateFileToken(attachment.ID)
	if err != nil {
		return models.FileRef{}, fmt.Errorf("failed to sign file url: %w", err)
	}
	return models.FileRef{
		Type:     attachment.Kind,
		URL:      fmt.Sprintf("%s/files/%s?sig=%s", u.publicURL, attachment.ID, url.QueryEscape(token)),
		Filename: attachment.Filename,
		Size:     attachment.Size,
	}, nil
}

// Open 讀取附件內容，呼叫者負責關閉
func (u *UploadService) Open(ctx context.Context, id string) (*models.Attachment, io.ReadCloser, error) {
	attachment, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := u.blobs.Open(attachment.Digest)
	if err != nil {
		return nil, nil, err
	}
	return attachment, rc, nil
}

// PurgeRoom 刪除房間的附件記錄，以及不再被任何記錄引用的檔案
func (u *UploadService) PurgeRoom(ctx context.Context, roomCode string) error {
	attachments, err := u.repo.FindByRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if len(attachments) == 0 {
		return nil
	}
	if _, err := u.repo.DeleteByRoom(ctx, roomCode); err != nil {
		return err
	}

	seen := make(map[string]bool)
	var errs []error
	for _, a := range attachments {
		if seen[a.Digest] {
			continue
		}
		seen[a.Digest] = true

		if err := u.deleteUnreferenced(ctx, a.Digest); err != nil {
			errs = append(errs, err)
		}
	}

	u.logger.Info("purged room attachments", "room", roomCode, "count", len(attachments))
	return errors.Join(errs...)
}

func (u *UploadService) deleteUnreferenced(ctx context.Context, digest string) error {
	unlock := u.lockDigest(digest)
	defer unlock()

	refs, err := u.repo.CountByDigest(ctx, digest)
	if err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	return u.blobs.Delete(digest)
}

func (u *UploadService) lockDigest(digest string) func() {
	n, err := strconv.ParseUint(digest[:2], 16, 8)
	if err != nil {
		n = 0
	}
	mu := &u.digestLocks[n%uint64(len(u.digestLocks))]
	mu.Lock()
	return mu.Unlock
}

// resolveMIME 優先使用 data URL 的宣告，其次副檔名，最後由內容判斷
func resolveMIME(filename string, data []byte, declared string) string {
	if mt := normalizeMIME(declared); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return normalizeMIME(mimetype.Detect(data).String())
}

func normalizeMIME(value string) string {
	if value == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mt
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return defaultFilename
	}
	return name
}
