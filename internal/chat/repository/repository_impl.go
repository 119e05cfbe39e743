package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/iamafoodie/buddy/internal/chat/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLog(ctx context.Context, tx *gorm.DB, log *domain.ChatLog) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO chat_logs (id, identity, question, answer, credits_left, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.Identity,
		log.Question,
		log.Answer,
		log.CreditsLeft,
		log.CreatedAt,
	).Error
}
