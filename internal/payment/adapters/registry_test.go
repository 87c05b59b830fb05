package adapters

import (
	"testing"

	"github.com/smallbiznis/charitydesk/internal/payment/adapters/stripe"
	"github.com/smallbiznis/charitydesk/internal/payment/domain"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(stripe.NewFactory(), nil)

	if !registry.ProviderExists(" Stripe ") {
		t.Fatalf("expected stripe to be registered")
	}
	if registry.ProviderExists("adyen") {
		t.Fatalf("unexpected provider")
	}
	if _, err := registry.NewAdapter("adyen", domain.AdapterConfig{}); err != domain.ErrProviderNotFound {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := registry.NewAdapter("stripe", domain.AdapterConfig{WebhookSecret: "whsec"}); err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	var nilRegistry *Registry
	if nilRegistry.ProviderExists("stripe") {
		t.Fatalf("nil registry should not report providers")
	}
}
