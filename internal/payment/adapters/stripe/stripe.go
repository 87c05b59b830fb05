package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
)

const (
	providerName     = "stripe"
	signatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrNotConfigured
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
		now:           now,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ts, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if a.tolerance > 0 {
		age := a.now().Sub(time.Unix(unix, 0))
		if age > a.tolerance || age < -a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

// Parse decodes a verified payload into a typed event. Types this service does not act on
// come back as Unrecognized rather than an error so the caller can acknowledge them.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	meta := paymentdomain.EventMeta{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		OccurredAt:      timestamp(event.Created, 0, a.now),
		RawPayload:      payload,
	}

	switch meta.Type {
	case paymentdomain.EventCheckoutCompleted:
		return parseCheckoutSession(meta, event)
	case paymentdomain.EventPaymentSucceeded:
		intent, err := decodeObject[stripePaymentIntent](event)
		if err != nil {
			return nil, err
		}
		return paymentdomain.PaymentSucceeded{
			EventMeta:       meta,
			PaymentIntentID: intent.ID,
			Metadata:        paymentdomain.ParseCheckoutMetadata(intent.Metadata),
		}, nil
	case paymentdomain.EventPaymentFailed:
		intent, err := decodeObject[stripePaymentIntent](event)
		if err != nil {
			return nil, err
		}
		failed := paymentdomain.PaymentFailed{
			EventMeta:       meta,
			PaymentIntentID: intent.ID,
			Metadata:        paymentdomain.ParseCheckoutMetadata(intent.Metadata),
		}
		if intent.LastPaymentError != nil {
			failed.FailureMessage = strings.TrimSpace(intent.LastPaymentError.Message)
		}
		return failed, nil
	case paymentdomain.EventSubscriptionCreated, paymentdomain.EventSubscriptionUpdated:
		sub, err := decodeObject[stripeSubscription](event)
		if err != nil {
			return nil, err
		}
		return paymentdomain.SubscriptionChanged{
			EventMeta:       meta,
			SubscriptionRef: sub.ID,
			Status:          strings.ToLower(strings.TrimSpace(sub.Status)),
			Created:         meta.Type == paymentdomain.EventSubscriptionCreated,
		}, nil
	case paymentdomain.EventSubscriptionDeleted:
		sub, err := decodeObject[stripeSubscription](event)
		if err != nil {
			return nil, err
		}
		return paymentdomain.SubscriptionDeleted{EventMeta: meta, SubscriptionRef: sub.ID}, nil
	case paymentdomain.EventInvoicePaymentSucceed:
		return parseInvoicePaid(meta, event, a.now)
	case paymentdomain.EventInvoicePaymentFailed:
		invoice, err := decodeObject[stripeInvoice](event)
		if err != nil {
			return nil, err
		}
		return paymentdomain.InvoiceFailed{
			EventMeta:       meta,
			InvoiceID:       invoice.ID,
			SubscriptionRef: invoice.subscriptionRef(),
			AttemptCount:    invoice.AttemptCount,
		}, nil
	default:
		return paymentdomain.Unrecognized{EventMeta: meta}, nil
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Customer        expandable        `json:"customer"`
	Subscription    expandable        `json:"subscription"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *stripeCustomer   `json:"customer_details"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
}

type stripeCustomer struct {
	Email string `json:"email"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeInvoice struct {
	ID                string     `json:"id"`
	Subscription      expandable `json:"subscription"`
	Customer          expandable `json:"customer"`
	AmountPaid        int64      `json:"amount_paid"`
	Currency          string     `json:"currency"`
	BillingReason     string     `json:"billing_reason"`
	AttemptCount      int64      `json:"attempt_count"`
	Created           int64      `json:"created"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	SubscriptionDetails *stripeSubscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *stripeSubscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

type stripeSubscriptionDetails struct {
	Subscription expandable        `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionRef reads the subscription id from either the legacy top-level field or the
// parent block newer API versions use.
func (i stripeInvoice) subscriptionRef() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (i stripeInvoice) metadata() map[string]string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && len(i.Parent.SubscriptionDetails.Metadata) > 0 {
		return i.Parent.SubscriptionDetails.Metadata
	}
	if i.SubscriptionDetails != nil {
		return i.SubscriptionDetails.Metadata
	}
	return nil
}

// expandable holds an object id that Stripe may send either as a bare string or expanded.
type expandable string

func (e *expandable) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandable(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandable(strings.TrimSpace(obj.ID))
	return nil
}

func decodeObject[T any](event stripeEvent) (T, error) {
	var out T
	if len(event.Data.Object) == 0 {
		return out, paymentdomain.ErrInvalidPayload
	}
	if err := json.Unmarshal(event.Data.Object, &out); err != nil {
		return out, paymentdomain.ErrInvalidPayload
	}
	return out, nil
}

func parseCheckoutSession(meta paymentdomain.EventMeta, event stripeEvent) (paymentdomain.Event, error) {
	session, err := decodeObject[stripeCheckoutSession](event)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	email := strings.TrimSpace(session.CustomerEmail)
	if email == "" && session.CustomerDetails != nil {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}
	currency := strings.ToUpper(strings.TrimSpace(session.Currency))

	return paymentdomain.CheckoutCompleted{
		EventMeta:       meta,
		SessionID:       session.ID,
		Mode:            paymentdomain.SessionMode(strings.ToLower(strings.TrimSpace(session.Mode))),
		CustomerRef:     string(session.Customer),
		SubscriptionRef: string(session.Subscription),
		CustomerEmail:   email,
		AmountTotal:     paymentdomain.FromMinorUnits(session.AmountTotal, currency),
		Currency:        currency,
		Metadata:        paymentdomain.ParseCheckoutMetadata(session.Metadata),
	}, nil
}

func parseInvoicePaid(meta paymentdomain.EventMeta, event stripeEvent, now func() time.Time) (paymentdomain.Event, error) {
	invoice, err := decodeObject[stripeInvoice](event)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	currency := strings.ToUpper(strings.TrimSpace(invoice.Currency))

	return paymentdomain.InvoicePaid{
		EventMeta:       meta,
		InvoiceID:       invoice.ID,
		SubscriptionRef: invoice.subscriptionRef(),
		CustomerRef:     string(invoice.Customer),
		AmountPaid:      paymentdomain.FromMinorUnits(invoice.AmountPaid, currency),
		Currency:        currency,
		BillingReason:   strings.TrimSpace(invoice.BillingReason),
		PaidAt:          timestamp(invoice.StatusTransitions.PaidAt, invoice.Created, now),
		Metadata:        paymentdomain.ParseCheckoutMetadata(invoice.metadata()),
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			ts = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(primary int64, fallback int64, now func() time.Time) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
