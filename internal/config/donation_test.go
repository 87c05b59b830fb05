package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLookupRecurringPrice(t *testing.T) {
	cfg := DonationConfig{
		DefaultCurrency: "USD",
		RecurringPrices: []RecurringPrice{
			{Currency: "usd", Interval: "month", Amount: "25", PriceID: "price_25_month"},
			{Currency: "USD", Interval: "year", Amount: "250.00", PriceID: "price_250_year"},
		},
	}

	id, ok := cfg.LookupRecurringPrice("USD", "month", decimal.NewFromInt(25))
	assert.True(t, ok)
	assert.Equal(t, "price_25_month", id)

	id, ok = cfg.LookupRecurringPrice("USD", "year", decimal.RequireFromString("250"))
	assert.True(t, ok)
	assert.Equal(t, "price_250_year", id)

	_, ok = cfg.LookupRecurringPrice("USD", "month", decimal.NewFromInt(30))
	assert.False(t, ok)
	_, ok = cfg.LookupRecurringPrice("EUR", "month", decimal.NewFromInt(25))
	assert.False(t, ok)
}

func TestSupportsCurrency(t *testing.T) {
	cfg := DefaultDonationConfig()
	assert.True(t, cfg.SupportsCurrency("usd"))
	assert.False(t, cfg.SupportsCurrency("JPY"))

	cfg.SupportedCurrencies = nil
	assert.True(t, cfg.SupportsCurrency("JPY"))
}

func TestValidateDonationConfig(t *testing.T) {
	assert.Error(t, validateDonationConfig(DonationConfig{}))
	assert.NoError(t, validateDonationConfig(DefaultDonationConfig()))

	bad := DefaultDonationConfig()
	bad.RecurringPrices = []RecurringPrice{{Currency: "USD", Interval: "month", Amount: "ten", PriceID: "price_x"}}
	assert.Error(t, validateDonationConfig(bad))
}
