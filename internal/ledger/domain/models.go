package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account statuses. Blocking is an operational action applied outside this
// service; no transition out of blocked is exposed here.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusBlocked = "blocked"
)

// Account is the per-identity entitlement row. Identity is always the
// canonical normalized form; raw provider spellings are never stored.
type Account struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	Identity               string       `gorm:"type:varchar(20);not null;uniqueIndex" json:"identity"`
	Status                 string       `gorm:"type:varchar(20);not null;default:active" json:"status"`
	PlanLabel              string       `gorm:"type:varchar(100)" json:"plan_label"`
	CustomerRef            string       `gorm:"type:varchar(100)" json:"customer_ref,omitempty"`
	IsRecurring            bool         `gorm:"not null;default:false" json:"is_recurring"`
	IsTrial                bool         `gorm:"not null;default:true" json:"is_trial"`
	CreditBalance          int          `gorm:"not null;default:0" json:"credit_balance"`
	LifetimeCreditsGranted int          `gorm:"not null;default:0" json:"lifetime_credits_granted"`
	QuestionCount          int          `gorm:"not null;default:0" json:"question_count"`
	PeriodStart            *time.Time   `json:"period_start,omitempty"`
	PeriodEnd              *time.Time   `json:"period_end,omitempty"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Expired reports whether the current period ended before now. Accounts
// without a period end never expire by time.
func (a *Account) Expired(now time.Time) bool {
	return a.PeriodEnd != nil && a.PeriodEnd.Before(now)
}
