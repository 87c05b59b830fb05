package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gateway event type strings as delivered by Stripe.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventPaymentSucceeded      = "payment_intent.succeeded"
	EventPaymentFailed         = "payment_intent.payment_failed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaymentSucceed = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// Event is a verified gateway notification. The concrete type says which kind it is;
// consumers switch on it and route everything else to Unrecognized.
type Event interface {
	Meta() EventMeta
	event()
}

type EventMeta struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	RawPayload      []byte
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) event()             {}

type SessionMode string

const (
	SessionModePayment      SessionMode = "payment"
	SessionModeSubscription SessionMode = "subscription"
)

type CheckoutCompleted struct {
	EventMeta
	SessionID       string
	Mode            SessionMode
	CustomerRef     string
	SubscriptionRef string
	CustomerEmail   string
	AmountTotal     decimal.Decimal
	Currency        string
	Metadata        CheckoutMetadata
}

type PaymentSucceeded struct {
	EventMeta
	PaymentIntentID string
	Metadata        CheckoutMetadata
}

type PaymentFailed struct {
	EventMeta
	PaymentIntentID string
	FailureMessage  string
	Metadata        CheckoutMetadata
}

type SubscriptionChanged struct {
	EventMeta
	SubscriptionRef string
	Status          string
	Created         bool
}

// Active reports whether the gateway still bills the subscription.
func (e SubscriptionChanged) Active() bool {
	switch e.Status {
	case "active", "trialing":
		return true
	}
	return false
}

type SubscriptionDeleted struct {
	EventMeta
	SubscriptionRef string
}

type InvoicePaid struct {
	EventMeta
	InvoiceID       string
	SubscriptionRef string
	CustomerRef     string
	AmountPaid      decimal.Decimal
	Currency        string
	BillingReason   string
	PaidAt          time.Time
	// Metadata is the subscription metadata Stripe copies onto the invoice.
	Metadata CheckoutMetadata
}

type InvoiceFailed struct {
	EventMeta
	InvoiceID       string
	SubscriptionRef string
	AttemptCount    int64
}

type Unrecognized struct {
	EventMeta
}
