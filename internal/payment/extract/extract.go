// Package extract turns arbitrary payment-provider webhook payloads into
// a NormalizedEvent. Providers ship wildly different shapes for the same
// logical event, so extraction runs an ordered rule list per field over a
// fixed set of payload views instead of hard-coding one schema.
package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iamafoodie/buddy/internal/payment/domain"
)

// Key lists are ordered by how specific they are; the first hit wins.
var (
	kindKeys  = []string{"type", "event", "event_type"}
	phoneKeys = []string{
		"whatsapp_number",
		"whatsapp",
		"phone_number",
		"phonenumber",
		"phone",
		"mobile",
		"mobile_number",
		"telephone",
		"tel",
		"msisdn",
		"contact_phone",
		"customer_phone",
		"billing_phone",
	}
	phoneObjectKeys = []string{"number", "value", "phone", "national"}
	planKeys        = []string{"product_title", "product_name", "plan_name", "plan", "title", "name"}
	creditKeys      = []string{"credits", "credit_amount", "credits_amount"}
	customerKeys    = []string{"email", "customer_id", "customer_email"}
	periodEndKeys   = []string{"period_end", "current_period_end", "expires_at", "valid_until"}
	recurringKeys   = []string{"recurring", "is_recurring", "subscription"}
	orderRefKeys    = []string{"order_id", "triggerable_id", "invoice_id"}
)

// Plan labels embed the amount either after the word ("credits50") or
// before it ("15 credits").
var creditsPattern = regexp.MustCompile(`(?i)credits?[\s_-]*(\d+)|(\d+)\s*credits?`)

var lineItemKeys = []string{"products", "items", "line_items"}

const (
	deepSearchMaxDepth = 4
	deepSearchMaxItems = 5
	phoneMinDigits     = 8
)

// Extractor normalizes raw webhook payloads. The order lookup is optional
// and only consulted when the payload carries no usable identity.
type Extractor struct {
	orders domain.OrderLookup
	log    *zap.Logger
}

func New(orders domain.OrderLookup, log *zap.Logger) *Extractor {
	return &Extractor{orders: orders, log: log.Named("payment.extract")}
}

// Extract parses the payload and fills a NormalizedEvent. It never fails:
// an unparseable payload yields an event with an empty kind, which the
// dispatcher treats as ignorable.
func (e *Extractor) Extract(ctx context.Context, payload []byte) domain.NormalizedEvent {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		e.log.Debug("payload is not a json object", zap.Error(err))
		return domain.NormalizedEvent{}
	}

	views := buildViews(body)
	ev := domain.NormalizedEvent{
		Kind:        firstString(views, kindKeys),
		PlanLabel:   firstString(views, planKeys),
		CustomerRef: firstString(views, customerKeys),
	}

	// Envelope form: {"event": {"trigger_type": "...", "triggerable_id": N}}.
	if ev.Kind == "" {
		if envelope, ok := asMap(body["event"]); ok {
			ev.Kind = stringValue(envelope["trigger_type"])
		}
	}

	// Orders that only name the product inside a line item list.
	if ev.PlanLabel == "" {
		ev.PlanLabel = lineItemPlanLabel(views)
	}

	ev.IdentityRaw = e.extractPhone(views, body)
	ev.CreditsHint = extractCredits(views, ev.PlanLabel)
	ev.IsRecurringHint = extractRecurring(views)
	ev.PeriodEndHint = extractPeriodEnd(views)
	ev.OrderRef = extractOrderRef(body, views)
	ev.StatusHint = firstString(views, []string{"status"})

	if ev.IdentityRaw == "" && ev.OrderRef != nil && e.orders != nil {
		e.backfillFromOrder(ctx, &ev)
	}
	return ev
}

// buildViews collects the payload objects worth scanning, outermost
// first. Provider payloads nest the interesting fields under data, order,
// customer or custom_fields in any combination.
func buildViews(body map[string]any) []map[string]any {
	views := []map[string]any{body}
	appendView := func(parent map[string]any, key string) map[string]any {
		if child, ok := asMap(parent[key]); ok {
			views = append(views, child)
			return child
		}
		return nil
	}

	data := appendView(body, "data")
	appendView(body, "event")
	for _, parent := range []map[string]any{body, data} {
		if parent == nil {
			continue
		}
		order := appendView(parent, "order")
		appendView(parent, "customer")
		appendView(parent, "custom_fields")
		appendView(parent, "contact")
		if order != nil {
			appendView(order, "customer")
			appendView(order, "custom_fields")
		}
	}
	return views
}

func (e *Extractor) extractPhone(views []map[string]any, body map[string]any) string {
	for _, view := range views {
		for _, key := range phoneKeys {
			raw, ok := view[key]
			if !ok {
				continue
			}
			if phone := phoneFromValue(raw); phone != "" {
				return phone
			}
		}
	}
	// Last resort: bounded walk over the whole payload looking for any
	// phone-ish string under a known key.
	return deepSearchPhone(body, 0)
}

// phoneFromValue accepts both plain strings and provider phone objects
// such as {"number": "+316...", "national": "06..."}.
func phoneFromValue(raw any) string {
	switch v := raw.(type) {
	case string:
		if plausiblePhone(v) {
			return strings.TrimSpace(v)
		}
	case map[string]any:
		for _, key := range phoneObjectKeys {
			if s := stringValue(v[key]); plausiblePhone(s) {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func plausiblePhone(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= phoneMinDigits
}

// deepSearchPhone walks nested maps and small lists for a value under a
// known phone key. Keys are visited in sorted order so extraction is
// deterministic regardless of json map iteration.
func deepSearchPhone(node any, depth int) string {
	if depth > deepSearchMaxDepth {
		return ""
	}
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lower := strings.ToLower(k)
			for _, pk := range phoneKeys {
				if lower == pk {
					if phone := phoneFromValue(v[k]); phone != "" {
						return phone
					}
				}
			}
		}
		for _, k := range keys {
			if phone := deepSearchPhone(v[k], depth+1); phone != "" {
				return phone
			}
		}
	case []any:
		limit := len(v)
		if limit > deepSearchMaxItems {
			limit = deepSearchMaxItems
		}
		for i := 0; i < limit; i++ {
			if phone := deepSearchPhone(v[i], depth+1); phone != "" {
				return phone
			}
		}
	}
	return ""
}

// extractCredits prefers an explicit credits field; failing that it reads
// a credit count embedded in the plan label, e.g. "Bundle credits50".
func extractCredits(views []map[string]any, planLabel string) *int {
	for _, view := range views {
		for _, key := range creditKeys {
			if n, ok := intValue(view[key]); ok && n > 0 {
				return &n
			}
		}
	}
	if m := creditsPattern.FindStringSubmatch(planLabel); m != nil {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		if n, err := strconv.Atoi(digits); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}

// lineItemPlanLabel reads the product title off the first line item of a
// products, items or line_items list.
func lineItemPlanLabel(views []map[string]any) string {
	for _, view := range views {
		for _, key := range lineItemKeys {
			items, ok := view[key].([]any)
			if !ok || len(items) == 0 {
				continue
			}
			item, ok := asMap(items[0])
			if !ok {
				continue
			}
			for _, labelKey := range []string{"product_title", "title", "name"} {
				if s := stringValue(item[labelKey]); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func extractRecurring(views []map[string]any) bool {
	for _, view := range views {
		for _, key := range recurringKeys {
			raw, ok := view[key]
			if !ok {
				continue
			}
			switch v := raw.(type) {
			case bool:
				return v
			case string:
				s := strings.ToLower(strings.TrimSpace(v))
				if s == "true" || s == "yes" || s == "1" {
					return true
				}
			case map[string]any:
				// A subscription object being present at all implies
				// the sale is recurring.
				return true
			}
		}
		if interval := strings.ToLower(firstString([]map[string]any{view}, []string{"interval", "billing_interval"})); interval != "" {
			return interval == "monthly" || interval == "month" || interval == "yearly" || interval == "year"
		}
	}
	return false
}

func extractPeriodEnd(views []map[string]any) *time.Time {
	for _, view := range views {
		for _, key := range periodEndKeys {
			raw := stringValue(view[key])
			if raw == "" {
				continue
			}
			if t, ok := parseTime(raw); ok {
				return &t
			}
		}
	}
	return nil
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func extractOrderRef(body map[string]any, views []map[string]any) *int64 {
	if envelope, ok := asMap(body["event"]); ok {
		trigger := strings.ToLower(stringValue(envelope["triggerable_type"]))
		if trigger == "" || strings.Contains(trigger, "order") || strings.Contains(trigger, "invoice") {
			if n, ok := int64Value(envelope["triggerable_id"]); ok {
				return &n
			}
		}
	}
	for _, view := range views {
		for _, key := range orderRefKeys {
			if n, ok := int64Value(view[key]); ok {
				return &n
			}
		}
	}
	return nil
}

func (e *Extractor) backfillFromOrder(ctx context.Context, ev *domain.NormalizedEvent) {
	details, err := e.orders.FetchOrder(ctx, *ev.OrderRef)
	if err != nil {
		e.log.Warn("order lookup failed",
			zap.Int64("order_id", *ev.OrderRef),
			zap.Error(err),
		)
		return
	}
	if ev.IdentityRaw == "" {
		ev.IdentityRaw = details.Phone
	}
	if ev.PlanLabel == "" {
		ev.PlanLabel = details.PlanLabel
	}
	if ev.CreditsHint == nil && details.Credits != nil {
		ev.CreditsHint = details.Credits
	}
}

func firstString(views []map[string]any, keys []string) string {
	for _, view := range views {
		for _, key := range keys {
			if s := stringValue(view[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func int64Value(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
