package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, tx *gorm.DB, record *EventRecord) error
}
