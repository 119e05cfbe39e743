package domain

import (
	"context"
	"errors"
	"time"
)

// ApplyPaymentRequest carries the fields a payment event may contribute.
// CreditsHint overrides the plan table; absence of both falls back to the
// configured default grant so a payment is never silently ungranted.
type ApplyPaymentRequest struct {
	Identity        string
	PlanLabel       string
	CreditsHint     *int
	IsRecurringHint bool
	PeriodEnd       *time.Time
	CustomerRef     string
}

type Service interface {
	// GetOrCreateTrial returns the account for identity, creating it with
	// the configured trial grant on first contact.
	GetOrCreateTrial(ctx context.Context, identity string) (*Account, error)
	// Get returns the account or nil when none exists.
	Get(ctx context.Context, identity string) (*Account, error)
	// CanTransact reports whether the account may have one more question
	// answered right now.
	CanTransact(ctx context.Context, identity string) (bool, error)
	// ConsumeOneCredit atomically spends one credit. False with nil error
	// means no credit was available or the account does not exist.
	ConsumeOneCredit(ctx context.Context, identity string) (bool, error)
	// ApplyPayment resolves the credit policy and grants it. Recurring
	// plans replace the balance; one-off packs add to it.
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*Account, error)
	// UpdateStatus sets status (and optionally period end) on an existing
	// account. False means not found, which is not an error.
	UpdateStatus(ctx context.Context, identity string, status string, periodEnd *time.Time) (bool, error)
	// Cancel marks the account expired. Idempotent; false means not found.
	Cancel(ctx context.Context, identity string) (bool, error)
}

var (
	ErrInvalidIdentity = errors.New("invalid_identity")
	ErrInvalidStatus   = errors.New("invalid_status")
)
