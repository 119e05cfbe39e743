package repository

import (
	"context"
	"time"

	"github.com/iamafoodie/buddy/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (
			id, identity, status, plan_label, customer_ref, is_recurring, is_trial,
			credit_balance, lifetime_credits_granted, question_count,
			period_start, period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Identity,
		account.Status,
		account.PlanLabel,
		account.CustomerRef,
		account.IsRecurring,
		account.IsTrial,
		account.CreditBalance,
		account.LifetimeCreditsGranted,
		account.QuestionCount,
		account.PeriodStart,
		account.PeriodEnd,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByIdentity(ctx context.Context, db *gorm.DB, candidates []string) (*domain.Account, error) {
	for _, candidate := range candidates {
		var account domain.Account
		err := db.WithContext(ctx).Raw(
			`SELECT id, identity, status, plan_label, customer_ref, is_recurring, is_trial,
				credit_balance, lifetime_credits_granted, question_count,
				period_start, period_end, created_at, updated_at
			 FROM accounts WHERE identity = ? LIMIT 1`,
			candidate,
		).Scan(&account).Error
		if err != nil {
			return nil, err
		}
		if account.ID != 0 {
			return &account, nil
		}
	}
	return nil, nil
}

func (r *repo) ApplyGrant(ctx context.Context, db *gorm.DB, identity string, grant domain.Grant, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET
			status = ?,
			plan_label = COALESCE(?, plan_label),
			customer_ref = COALESCE(?, customer_ref),
			credit_balance = CASE WHEN ? THEN ? ELSE credit_balance + ? END,
			lifetime_credits_granted = lifetime_credits_granted + ?,
			is_recurring = ?,
			is_trial = ?,
			period_start = COALESCE(period_start, ?),
			period_end = COALESCE(?, period_end),
			updated_at = ?
		 WHERE identity = ?`,
		domain.StatusActive,
		grant.PlanLabel,
		grant.CustomerRef,
		grant.Replace,
		grant.Credits,
		grant.Credits,
		grant.Credits,
		grant.IsRecurring,
		false,
		now,
		grant.PeriodEnd,
		now,
		identity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ConsumeCredit(ctx context.Context, db *gorm.DB, identity string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET
			credit_balance = credit_balance - 1,
			question_count = question_count + 1,
			updated_at = ?
		 WHERE identity = ? AND credit_balance >= 1`,
		now,
		identity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, identity string, status string, periodEnd *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET
			status = ?,
			period_end = COALESCE(?, period_end),
			updated_at = ?
		 WHERE identity = ?`,
		status,
		periodEnd,
		now,
		identity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
