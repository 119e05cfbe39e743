package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Grant describes a resolved credit policy applied to an existing row.
// Optional fields are pointers so an absent value never clobbers a
// populated column.
type Grant struct {
	Credits     int
	Replace     bool
	IsRecurring bool
	PlanLabel   *string
	CustomerRef *string
	PeriodEnd   *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	// FindByIdentity tries each candidate spelling in order; first match wins.
	FindByIdentity(ctx context.Context, db *gorm.DB, candidates []string) (*Account, error)
	// ApplyGrant mutates balance, lifetime counter and plan fields in one
	// statement so concurrent grants cannot lose an addition.
	ApplyGrant(ctx context.Context, db *gorm.DB, identity string, grant Grant, now time.Time) (bool, error)
	// ConsumeCredit decrements the balance and bumps the question count,
	// guarded by credit_balance >= 1. Returns false when the guard fails.
	ConsumeCredit(ctx context.Context, db *gorm.DB, identity string, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, identity string, status string, periodEnd *time.Time, now time.Time) (bool, error)
}
