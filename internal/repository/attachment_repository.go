package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"codechat/internal/models"
	"codechat/internal/storage"
)

var ErrAttachmentNotFound = errors.New("attachment not found")

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	FindByRoom(ctx context.Context, roomCode string) ([]models.Attachment, error)
	DeleteByRoom(ctx context.Context, roomCode string) (int64, error)
	CountByDigest(ctx context.Context, digest string) (int64, error)
}

type attachmentRepository struct {
	db *storage.DB
}

func NewAttachmentRepository(db *storage.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *attachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	var attachment models.Attachment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// FindByRoom 依上傳時間列出房間內的附件
func (r *attachmentRepository) FindByRoom(ctx context.Context, roomCode string) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := r.db.WithContext(ctx).Where("room_code = ?", roomCode).Order("created_at asc").Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) DeleteByRoom(ctx context.Context, roomCode string) (int64, error) {
	result := r.db.WithContext(ctx).Where("room_code = ?", roomCode).Delete(&models.Attachment{})
	return result.RowsAffected, result.Error
}

func (r *attachmentRepository) CountByDigest(ctx context.Context, digest string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Attachment{}).Where("digest = ?", digest).Count(&count).Error
	return count, err
}
