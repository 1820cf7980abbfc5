package paypal

import "github.com/shopspring/decimal"

// WebhookEvent is the envelope the gateway posts for payment lifecycle
// events. Only the fields this service consumes are modeled.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  WebhookResource `json:"resource"`
}

// WebhookResource is the capture resource inside a webhook event
type WebhookResource struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	Amount            *ResourceAmount    `json:"amount,omitempty"`
	SupplementaryData *SupplementaryData `json:"supplementary_data,omitempty"`
}

// ResourceAmount is the captured amount on the resource
type ResourceAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// SupplementaryData links a capture back to the order it settled
type SupplementaryData struct {
	RelatedIDs *RelatedIDs `json:"related_ids,omitempty"`
}

// RelatedIDs holds the related resource identifiers
type RelatedIDs struct {
	OrderID string `json:"order_id"`
}

// OrderID returns the external order id the event correlates to, preferring
// the explicit related order id over the resource id.
func (e *WebhookEvent) OrderID() string {
	if e.Resource.SupplementaryData != nil && e.Resource.SupplementaryData.RelatedIDs != nil &&
		e.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		return e.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return e.Resource.ID
}

// CapturedAmount returns the captured amount when the event carries one
func (e *WebhookEvent) CapturedAmount() (decimal.Decimal, bool) {
	if e.Resource.Amount == nil {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(e.Resource.Amount.Value)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}
