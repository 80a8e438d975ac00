package provider

import "context"

// PaymentIntent is the provider-side handle for a deposit the customer still
// has to approve.
type PaymentIntent struct {
	OrderID     string `json:"order_id"`
	ApproveURL  string `json:"approve_url,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PaymentCapture is the verified result of a captured payment. Ref is the
// gateway's capture identifier, recorded on the deposit entry for audit and
// idempotency.
type PaymentCapture struct {
	Ref         string
	AmountCents int64
	Currency    string
}

// Payments is the payment gateway collaborator.
type Payments interface {
	CreateOrder(ctx context.Context, amountCents int64, currency string) (*PaymentIntent, error)
	CaptureOrder(ctx context.Context, orderID string) (*PaymentCapture, error)
}
