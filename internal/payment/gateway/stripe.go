package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/smallbiznis/charitydesk/internal/payment/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

const submitTypeDonate = "donate"

// StripeGateway talks to the Stripe API for customers, prices and hosted checkout sessions.
type StripeGateway struct {
	api *client.API
	log *zap.Logger
}

// NewStripe returns a gateway for the configured secret key. Without a key every call fails
// with ErrNotConfigured before reaching the network.
func NewStripe(cfg config.Config, log *zap.Logger) domain.Gateway {
	return newStripe(cfg.Stripe.SecretKey, nil, log)
}

func newStripe(secretKey string, backends *stripe.Backends, log *zap.Logger) *StripeGateway {
	g := &StripeGateway{log: log.Named("payment.gateway.stripe")}
	if strings.TrimSpace(secretKey) != "" {
		g.api = client.New(secretKey, backends)
	}
	return g
}

func (g *StripeGateway) Configured() bool {
	return g != nil && g.api != nil
}

func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	if !g.Configured() {
		return "", false, domain.ErrNotConfigured
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false, nil
	}

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := g.api.Customers.List(params)
	for iter.Next() {
		if c := iter.Customer(); c != nil && c.ID != "" {
			return c.ID, true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", false, g.wrap("customer lookup", err)
	}
	return "", false, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, in domain.CustomerParams) (string, error) {
	if !g.Configured() {
		return "", domain.ErrNotConfigured
	}

	params := &stripe.CustomerParams{Email: stripe.String(strings.TrimSpace(in.Email))}
	if name := strings.TrimSpace(in.Name); name != "" {
		params.Name = stripe.String(name)
	}
	for key, value := range in.Metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", g.wrap("customer create", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateRecurringPrice(ctx context.Context, in domain.PriceParams) (string, error) {
	if !g.Configured() {
		return "", domain.ErrNotConfigured
	}

	params := &stripe.PriceParams{
		Currency:   stripe.String(strings.ToLower(in.Currency)),
		UnitAmount: stripe.Int64(domain.ToMinorUnits(in.Amount, in.Currency)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(in.Interval),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(in.ProductName),
		},
	}
	params.Context = ctx

	p, err := g.api.Prices.New(params)
	if err != nil {
		return "", g.wrap("price create", err)
	}
	return p.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in domain.SessionParams) (*domain.Session, error) {
	if !g.Configured() {
		return nil, domain.ErrNotConfigured
	}

	metadata := in.Metadata.ToMap()
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Metadata:   metadata,
	}
	if in.CustomerRef != "" {
		params.Customer = stripe.String(in.CustomerRef)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}

	switch in.Mode {
	case domain.SessionModeSubscription:
		if in.PriceID == "" {
			return nil, fmt.Errorf("%w: recurring checkout requires a price", domain.ErrGateway)
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(in.PriceID),
			Quantity: stripe.Int64(1),
		}}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Description: optional(in.Description),
			Metadata:    metadata,
		}
	default:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.SubmitType = stripe.String(submitTypeDonate)
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(in.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(in.ProductName),
					Description: optional(in.Description),
				},
				UnitAmount: stripe.Int64(domain.ToMinorUnits(in.Amount, in.Currency)),
			},
			Quantity: stripe.Int64(1),
		}}
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: optional(in.Description),
			Metadata:    metadata,
		}
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.wrap("checkout session create", err)
	}
	return &domain.Session{ID: s.ID, URL: s.URL}, nil
}

// wrap logs the provider message and hides it behind ErrGateway.
func (g *StripeGateway) wrap(op string, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		fields = append(fields,
			zap.String("stripe_type", string(stripeErr.Type)),
			zap.String("stripe_code", string(stripeErr.Code)),
			zap.String("stripe_message", stripeErr.Msg),
			zap.Int("http_status", stripeErr.HTTPStatusCode),
		)
	}
	g.log.Warn("stripe request failed", fields...)
	return fmt.Errorf("%w: %s", domain.ErrGateway, op)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return stripe.String(value)
}
