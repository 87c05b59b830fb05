package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DonationConfig is the operator-editable donation catalog.
type DonationConfig struct {
	DefaultCurrency     string           `mapstructure:"defaultCurrency"`
	SupportedCurrencies []string         `mapstructure:"supportedCurrencies"`
	ProductName         string           `mapstructure:"productName"`
	RecurringPrices     []RecurringPrice `mapstructure:"recurringPrices"`
}

// RecurringPrice maps a fixed recurring amount to a pre-created gateway price.
type RecurringPrice struct {
	Currency string `mapstructure:"currency"`
	Interval string `mapstructure:"interval"`
	Amount   string `mapstructure:"amount"`
	PriceID  string `mapstructure:"priceId"`
}

func DefaultDonationConfig() DonationConfig {
	return DonationConfig{
		DefaultCurrency:     "USD",
		SupportedCurrencies: []string{"USD", "EUR", "GBP", "CAD", "AUD"},
		ProductName:         "Donation",
	}
}

// SupportsCurrency reports whether code is accepted for checkout. An empty list accepts everything.
func (c DonationConfig) SupportsCurrency(code string) bool {
	if len(c.SupportedCurrencies) == 0 {
		return true
	}
	for _, cur := range c.SupportedCurrencies {
		if strings.EqualFold(cur, code) {
			return true
		}
	}
	return false
}

// LookupRecurringPrice returns the configured price id for an exact currency, interval and amount.
func (c DonationConfig) LookupRecurringPrice(currency, interval string, amount decimal.Decimal) (string, bool) {
	for _, p := range c.RecurringPrices {
		if !strings.EqualFold(p.Currency, currency) || !strings.EqualFold(p.Interval, interval) {
			continue
		}
		configured, err := decimal.NewFromString(strings.TrimSpace(p.Amount))
		if err != nil {
			continue
		}
		if configured.Equal(amount) && strings.TrimSpace(p.PriceID) != "" {
			return strings.TrimSpace(p.PriceID), true
		}
	}
	return "", false
}

type DonationConfigHolder struct {
	current atomic.Value // holds DonationConfig
}

// NewStaticDonationConfigHolder wraps a fixed config, used by tests and tools.
func NewStaticDonationConfigHolder(cfg DonationConfig) *DonationConfigHolder {
	holder := &DonationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDonationConfigHolder(log *zap.Logger) (*DonationConfigHolder, error) {
	log = log.Named("config.donation")
	v := viper.New()

	v.SetConfigName("donation")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/charitydesk/config")
	v.AddConfigPath("/etc/charitydesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHARITYDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDonationConfig()
	v.SetDefault("donation.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("donation.supportedCurrencies", defaults.SupportedCurrencies)
	v.SetDefault("donation.productName", defaults.ProductName)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg DonationConfig
	if err := v.UnmarshalKey("donation", &cfg); err != nil {
		return nil, err
	}
	if err := validateDonationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticDonationConfigHolder(cfg)
	if !fileLoaded {
		log.Info("donation config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DonationConfig
		if err := v.UnmarshalKey("donation", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateDonationConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DonationConfigHolder) Get() DonationConfig {
	return h.current.Load().(DonationConfig)
}

func validateDonationConfig(cfg DonationConfig) error {
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("donation.defaultCurrency cannot be empty")
	}
	for i, p := range cfg.RecurringPrices {
		if strings.TrimSpace(p.PriceID) == "" {
			return fmt.Errorf("donation.recurringPrices[%d].priceId cannot be empty", i)
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(p.Amount)); err != nil {
			return fmt.Errorf("donation.recurringPrices[%d].amount: %w", i, err)
		}
	}
	return nil
}
