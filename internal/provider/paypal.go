package provider

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/plutov/paypal/v4"

	"hostbill/internal/model"
)

// PayPal adapts the plutov client to the Payments contract. Amounts cross
// the wire as dollar strings; everything internal stays in cents.
type PayPal struct {
	client *paypal.Client
}

func NewPayPal(ctx context.Context, clientID, secret string, live bool) (*PayPal, error) {
	base := paypal.APIBaseSandBox
	if live {
		base = paypal.APIBaseLive
	}
	c, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("paypal token: %w", err)
	}
	return &PayPal{client: c}, nil
}

func (p *PayPal) CreateOrder(ctx context.Context, amountCents int64, currency string) (*PaymentIntent, error) {
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture,
		[]paypal.PurchaseUnitRequest{{
			Amount: &paypal.PurchaseUnitAmount{
				Currency: currency,
				Value:    centsToValue(amountCents),
			},
		}}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", model.ErrPayment, err)
	}

	intent := &PaymentIntent{OrderID: order.ID, AmountCents: amountCents, Currency: currency}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			intent.ApproveURL = link.Href
		}
	}
	return intent, nil
}

func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (*PaymentCapture, error) {
	resp, err := p.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: capture order: %v", model.ErrPayment, err)
	}
	if resp.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: capture status %s", model.ErrPayment, resp.Status)
	}

	capture := &PaymentCapture{Ref: resp.ID, Currency: "USD"}
	for _, pu := range resp.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, c := range pu.Payments.Captures {
			capture.Ref = c.ID
			if c.Amount != nil {
				capture.Currency = c.Amount.Currency
				cents, convErr := valueToCents(c.Amount.Value)
				if convErr != nil {
					return nil, fmt.Errorf("%w: parse amount %q: %v", model.ErrPayment, c.Amount.Value, convErr)
				}
				capture.AmountCents = cents
			}
		}
	}
	if capture.AmountCents == 0 {
		return nil, fmt.Errorf("%w: capture %s has no amount", model.ErrPayment, orderID)
	}
	return capture, nil
}

func centsToValue(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func valueToCents(value string) (int64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}
