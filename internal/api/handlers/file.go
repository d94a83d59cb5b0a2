package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"codechat/internal/models"
	"codechat/internal/repository"
	"codechat/internal/service"
	"codechat/internal/storage"
)

// FileHandler 提供附件下載，簽名由 middleware.FileSignature 驗證
type FileHandler struct {
	uploads *service.UploadService
	logger  *slog.Logger
}

func NewFileHandler(uploads *service.UploadService, logger *slog.Logger) *FileHandler {
	return &FileHandler{uploads: uploads, logger: logger}
}

func (h *FileHandler) Download(c *gin.Context) {
	attachment, rc, err := h.uploads.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrAttachmentNotFound) || errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.logger.Error("failed to open attachment", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	defer rc.Close()

	disposition := "attachment"
	if attachment.Kind != models.FileKindDocument {
		disposition = "inline"
	}

	c.Header("Content-Type", attachment.MimeType)
	c.Header("Content-Length", strconv.FormatInt(attachment.Size, 10))
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": attachment.Filename}))
	c.Header("Cache-Control", "private, max-age=31536000, immutable")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Debug("attachment download interrupted", "id", attachment.ID, "error", err)
	}
}
