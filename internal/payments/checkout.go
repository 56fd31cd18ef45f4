// Package payments creates Stripe checkout sessions for plan upgrades.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/chatforge-app/chatforge/internal/config"
	"github.com/chatforge-app/chatforge/internal/models"
)

// ErrNotConfigured indicates no Stripe secret key is present.
var ErrNotConfigured = errors.New("payments: not configured")

// planPrices maps upgradable plans to their monthly price in cents.
var planPrices = map[models.Plan]int64{
	models.PlanBasic:   999,
	models.PlanPremium: 1999,
}

// Checkout creates checkout sessions for plan purchases.
type Checkout struct {
	cfg config.StripeConfig
}

// NewCheckout constructs a Checkout and installs the API key. Returns nil
// when payments are not configured; callers must handle the nil receiver.
func NewCheckout(cfg config.StripeConfig) *Checkout {
	if cfg.SecretKey == "" {
		return nil
	}
	stripe.Key = cfg.SecretKey
	return &Checkout{cfg: cfg}
}

// CreateSession starts a subscription checkout for the plan and returns the
// hosted payment URL and the session id.
func (c *Checkout) CreateSession(_ context.Context, user models.User, plan models.Plan) (string, string, error) {
	if c == nil {
		return "", "", ErrNotConfigured
	}
	amount, ok := planPrices[plan]
	if !ok {
		return "", "", fmt.Errorf("payments: plan %q is not purchasable", plan)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		CustomerEmail:      stripe.String(user.Email),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(amount),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("ChatForge %s plan", plan)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
		Metadata:   map[string]string{"user_id": user.ID, "plan": string(plan)},
	}

	sess, errNew := checkoutsession.New(params)
	if errNew != nil {
		return "", "", fmt.Errorf("payments: create checkout session: %w", errNew)
	}
	return sess.URL, sess.ID, nil
}
