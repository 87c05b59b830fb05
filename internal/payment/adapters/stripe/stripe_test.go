package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
)

func newTestAdapter(t *testing.T, now time.Time) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		WebhookSecret: "whsec_test",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	if _, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{WebhookSecret: "  "}); err != paymentdomain.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)

	adapter := newTestAdapter(t, now)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("whsec_test", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != paymentdomain.ErrInvalidSignature {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	tampered := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{"x":1}}}`)
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("whsec_test", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), tampered, reqHeader); err != paymentdomain.ErrInvalidSignature {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != paymentdomain.ErrInvalidSignature {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	adapter := newTestAdapter(t, now)

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("whsec_test", payload, now.Add(-10*time.Minute).Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != paymentdomain.ErrInvalidSignature {
		t.Fatalf("expected stale signature to fail, got %v", err)
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	payload := mustJSON(t, map[string]any{
		"id":      "evt_cs",
		"type":    "checkout.session.completed",
		"created": 1_760_000_000,
		"data": map[string]any{
			"object": map[string]any{
				"id":               "cs_test_1",
				"mode":             "subscription",
				"customer":         "cus_1",
				"subscription":     map[string]any{"id": "sub_1", "object": "subscription"},
				"customer_details": map[string]any{"email": "jane@x.com"},
				"amount_total":     2500,
				"currency":         "usd",
				"metadata": map[string]any{
					"donor_type":   "guest",
					"guest_email":  "jane@x.com",
					"amount":       "25",
					"is_recurring": "true",
					"frequency":    "monthly",
				},
			},
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	completed, ok := event.(paymentdomain.CheckoutCompleted)
	if !ok {
		t.Fatalf("expected CheckoutCompleted, got %T", event)
	}
	if completed.SessionID != "cs_test_1" || completed.CustomerRef != "cus_1" || completed.SubscriptionRef != "sub_1" {
		t.Fatalf("unexpected refs: %+v", completed)
	}
	if completed.Mode != paymentdomain.SessionModeSubscription {
		t.Fatalf("expected subscription mode, got %s", completed.Mode)
	}
	if !completed.AmountTotal.Equal(decimal.NewFromInt(25)) || completed.Currency != "USD" {
		t.Fatalf("unexpected amount %s %s", completed.AmountTotal, completed.Currency)
	}
	if completed.CustomerEmail != "jane@x.com" || !completed.Metadata.IsRecurring {
		t.Fatalf("unexpected metadata: %+v", completed.Metadata)
	}
	if completed.Meta().ProviderEventID != "evt_cs" {
		t.Fatalf("expected provider event id, got %s", completed.Meta().ProviderEventID)
	}
}

func TestParseTypedEvents(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())

	tests := []struct {
		name   string
		typ    string
		object map[string]any
		check  func(t *testing.T, event paymentdomain.Event)
	}{{
		name:   "payment succeeded",
		typ:    "payment_intent.succeeded",
		object: map[string]any{"id": "pi_1", "metadata": map[string]any{"donation_id": "42"}},
		check: func(t *testing.T, event paymentdomain.Event) {
			got, ok := event.(paymentdomain.PaymentSucceeded)
			if !ok || got.PaymentIntentID != "pi_1" || got.Metadata.DonationID != "42" {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name:   "payment failed",
		typ:    "payment_intent.payment_failed",
		object: map[string]any{"id": "pi_2", "last_payment_error": map[string]any{"message": "card declined"}},
		check: func(t *testing.T, event paymentdomain.Event) {
			got, ok := event.(paymentdomain.PaymentFailed)
			if !ok || got.PaymentIntentID != "pi_2" || got.FailureMessage != "card declined" {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name:   "subscription updated",
		typ:    "customer.subscription.updated",
		object: map[string]any{"id": "sub_1", "status": "past_due"},
		check: func(t *testing.T, event paymentdomain.Event) {
			got, ok := event.(paymentdomain.SubscriptionChanged)
			if !ok || got.SubscriptionRef != "sub_1" || got.Active() || got.Created {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name:   "subscription deleted",
		typ:    "customer.subscription.deleted",
		object: map[string]any{"id": "sub_1", "status": "canceled"},
		check: func(t *testing.T, event paymentdomain.Event) {
			if _, ok := event.(paymentdomain.SubscriptionDeleted); !ok {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name: "invoice paid via parent block",
		typ:  "invoice.payment_succeeded",
		object: map[string]any{
			"id":             "in_1",
			"customer":       "cus_1",
			"amount_paid":    1000,
			"currency":       "usd",
			"billing_reason": "subscription_cycle",
			"parent": map[string]any{
				"subscription_details": map[string]any{"subscription": "sub_9"},
			},
		},
		check: func(t *testing.T, event paymentdomain.Event) {
			got, ok := event.(paymentdomain.InvoicePaid)
			if !ok || got.SubscriptionRef != "sub_9" || !got.AmountPaid.Equal(decimal.NewFromInt(10)) {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name:   "invoice failed",
		typ:    "invoice.payment_failed",
		object: map[string]any{"id": "in_2", "subscription": "sub_1", "attempt_count": 2},
		check: func(t *testing.T, event paymentdomain.Event) {
			got, ok := event.(paymentdomain.InvoiceFailed)
			if !ok || got.AttemptCount != 2 || got.SubscriptionRef != "sub_1" {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}, {
		name:   "unknown type",
		typ:    "charge.refunded",
		object: map[string]any{"id": "ch_1"},
		check: func(t *testing.T, event paymentdomain.Event) {
			if _, ok := event.(paymentdomain.Unrecognized); !ok {
				t.Fatalf("unexpected event %#v", event)
			}
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := mustJSON(t, map[string]any{
				"id":   "evt_" + tt.name,
				"type": tt.typ,
				"data": map[string]any{"object": tt.object},
			})
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			tt.check(t, event)
		})
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	if _, err := adapter.Parse(context.Background(), []byte("{")); err != paymentdomain.ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if _, err := adapter.Parse(context.Background(), []byte(`{"type":"x"}`)); err != paymentdomain.ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
