package repository

import "codechat/internal/storage"

type Repositories struct {
	Attachment AttachmentRepository
}

func NewRepositories(db *storage.DB) *Repositories {
	return &Repositories{
		Attachment: NewAttachmentRepository(db),
	}
}
