package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("donor_type", "guest"),
		attribute.String("guest_email", "a@example.com"),
		attribute.String("outcome", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "guest_email" {
			t.Fatalf("expected guest_email to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheckout(context.Background(), "guest", false, "ok")
	m.RecordWebhookEvent(context.Background(), "stripe", "checkout.session.completed", "applied")
	m.RecordClaim(context.Background(), "ok")
	m.RecordReceipt(context.Background(), "sent")
	m.RecordRateLimited(context.Background(), "checkout")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "charitydesk"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCheckout(context.Background(), "anonymous", true, "ok")
}
