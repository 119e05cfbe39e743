package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// NormalizedEvent is the canonical, flattened form of a provider webhook
// payload. It is ephemeral; only the audit EventRecord is persisted.
type NormalizedEvent struct {
	Kind            string
	IdentityRaw     string
	PlanLabel       string
	CreditsHint     *int
	CustomerRef     string
	IsRecurringHint bool
	PeriodEndHint   *time.Time
	StatusHint      string
	OrderRef        *int64
}

// Action buckets for provider event kinds.
type Action int

const (
	ActionUnknown Action = iota
	ActionApplyPayment
	ActionUpdateStatus
	ActionCancel
)

// ClassifyKind maps a provider event kind to the ledger operation it
// implies. Case-insensitive and tolerant of dotted or underscored
// provider spellings.
func ClassifyKind(kind string) Action {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	normalized = strings.ReplaceAll(normalized, ".", "_")

	switch {
	case normalized == "":
		return ActionUnknown
	case strings.Contains(normalized, "cancel") || strings.Contains(normalized, "expired"):
		return ActionCancel
	case strings.Contains(normalized, "updated"):
		return ActionUpdateStatus
	case strings.Contains(normalized, "created"),
		strings.Contains(normalized, "received"),
		strings.Contains(normalized, "renewed"),
		strings.Contains(normalized, "sale"),
		strings.Contains(normalized, "invoice"):
		return ActionApplyPayment
	default:
		return ActionUnknown
	}
}

// EventRecord is the audit trail row written for every dispatched payment
// event. Payment events are deliberately not deduplicated on this table:
// a provider re-delivery re-applies the grant, and the record gives
// operators the trail to spot it.
type EventRecord struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	Kind       string         `gorm:"type:varchar(100);not null" json:"kind"`
	Identity   string         `gorm:"type:varchar(20);index" json:"identity"`
	PlanLabel  string         `gorm:"type:varchar(100)" json:"plan_label"`
	Credits    *int           `json:"credits,omitempty"`
	Handled    bool           `gorm:"not null;default:false" json:"handled"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt time.Time      `gorm:"not null" json:"received_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// OrderDetails is what the order-lookup collaborator can contribute when
// the webhook payload itself lacks identity or plan data.
type OrderDetails struct {
	Phone     string
	PlanLabel string
	Credits   *int
}

// OrderLookup is the outbound collaborator fetching an order resource by
// provider id. Implementations must degrade to an empty OrderDetails on
// any failure rather than returning an error the webhook path would see.
type OrderLookup interface {
	FetchOrder(ctx context.Context, orderID int64) (OrderDetails, error)
}

// Service dispatches normalized events to the entitlement ledger.
type Service interface {
	// Dispatch routes the event to the ledger call its kind implies.
	// False with nil error means the event was deliberately ignored
	// (unknown kind, unresolvable identity); the webhook must still be
	// acknowledged to the provider.
	Dispatch(ctx context.Context, event NormalizedEvent, payload []byte) (bool, error)
}
