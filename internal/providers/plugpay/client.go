package plugpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iamafoodie/buddy/internal/payment/domain"
)

type Config struct {
	BaseURL        string
	APIToken       string
	DefaultCredits int
}

// Client fetches order resources from the payment provider's REST API.
// It is consulted when a webhook names an order but carries no customer
// contact details itself.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log.Named("providers.plugpay"),
	}
}

func (c *Client) FetchOrder(ctx context.Context, orderID int64) (domain.OrderDetails, error) {
	url := fmt.Sprintf("%s/v2/orders/%d?include=billing", strings.TrimRight(c.cfg.BaseURL, "/"), orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.OrderDetails{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.OrderDetails{}, fmt.Errorf("order lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return domain.OrderDetails{}, fmt.Errorf("order lookup: unexpected status %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.OrderDetails{}, fmt.Errorf("order lookup: decode: %w", err)
	}

	// The API wraps the resource in a data envelope.
	order := body
	if data, ok := body["data"].(map[string]any); ok {
		order = data
	}
	return c.parseOrder(order), nil
}

func (c *Client) parseOrder(order map[string]any) domain.OrderDetails {
	var details domain.OrderDetails

	details.Phone = findPhone(order)
	details.PlanLabel = findPlanLabel(order)

	// Without a plan match the grant falls back to the configured default,
	// so the order amount only needs to prove the sale was real.
	if details.PlanLabel == "" && c.cfg.DefaultCredits > 0 {
		if amount, ok := findAmount(order); ok && amount > 0 {
			credits := c.cfg.DefaultCredits
			details.Credits = &credits
		}
	}
	return details
}

var phoneFields = []string{"whatsapp_number", "phone_number", "phone", "mobile", "telephone"}

func findPhone(order map[string]any) string {
	scopes := []map[string]any{order}
	if billing, ok := order["billing"].(map[string]any); ok {
		scopes = append(scopes, billing)
		if address, ok := billing["address"].(map[string]any); ok {
			scopes = append(scopes, address)
		}
	}
	if customer, ok := order["customer"].(map[string]any); ok {
		scopes = append(scopes, customer)
	}
	if fields, ok := order["custom_fields"].(map[string]any); ok {
		scopes = append(scopes, fields)
	}
	for _, scope := range scopes {
		for _, key := range phoneFields {
			if s, ok := scope[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func findPlanLabel(order map[string]any) string {
	if items, ok := order["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			for _, key := range []string{"product_title", "title", "name"} {
				if s, ok := item[key].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	for _, key := range []string{"product_title", "title"} {
		if s, ok := order[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func findAmount(order map[string]any) (float64, bool) {
	for _, key := range []string{"total", "amount", "subtotal"} {
		switch v := order[key].(type) {
		case float64:
			return v, true
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
