package plugpay

import (
	"context"

	"github.com/iamafoodie/buddy/internal/payment/domain"
)

// NoOpProvider is used when no API token is configured. Webhook payloads
// that carry their own identity still work; only the order backfill is
// unavailable.
type NoOpProvider struct{}

func (p *NoOpProvider) FetchOrder(ctx context.Context, orderID int64) (domain.OrderDetails, error) {
	return domain.OrderDetails{}, nil
}
