package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/iamafoodie/buddy/internal/payment/domain"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) InsertEvent(ctx context.Context, tx *gorm.DB, record *domain.EventRecord) error {
	return tx.WithContext(ctx).Exec(`
INSERT INTO payment_events (id, kind, identity, plan_label, credits, handled, payload, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.Kind,
		record.Identity,
		record.PlanLabel,
		record.Credits,
		record.Handled,
		record.Payload,
		record.ReceivedAt,
	).Error
}
