package repository

import (
	"context"
	"time"

	"github.com/iamafoodie/buddy/internal/inbox/domain"
	pkgdb "github.com/iamafoodie/buddy/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Admit(ctx context.Context, db *gorm.DB, messageID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		admitStmt(db.Dialector.Name()),
		messageID,
		time.Now().UTC(),
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// admitStmt picks the insert form for the dialect. Postgres and sqlite
// swallow the conflict in SQL; mysql has no ON CONFLICT, so the bare
// insert errors on duplicates and the caller classifies the error.
func admitStmt(dialect string) string {
	if dialect == "mysql" {
		return `INSERT INTO delivery_records (message_id, received_at) VALUES (?, ?)`
	}
	return `INSERT INTO delivery_records (message_id, received_at)
		 VALUES (?, ?)
		 ON CONFLICT (message_id) DO NOTHING`
}

func (r *repo) PurgeAll(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM delivery_records`)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
