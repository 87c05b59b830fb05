package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gateway is the outbound side of the payment processor used during checkout.
type Gateway interface {
	// Configured reports whether credentials are present; checkout fails closed when they are not.
	Configured() bool
	// FindCustomerByEmail returns the first customer registered under email, if any.
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateRecurringPrice(ctx context.Context, params PriceParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
}

type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type PriceParams struct {
	Amount      decimal.Decimal
	Currency    string
	Interval    string
	ProductName string
}

type SessionParams struct {
	Mode          SessionMode
	CustomerRef   string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
	PriceID       string
	ProductName   string
	Description   string
	SuccessURL    string
	CancelURL     string
	Metadata      CheckoutMetadata
}

type Session struct {
	ID  string
	URL string
}

// WebhookAdapter authenticates and decodes one provider's webhook deliveries.
type WebhookAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (Event, error)
}

type AdapterConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
	Now           func() time.Time
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (WebhookAdapter, error)
}

// WebhookService verifies a delivery and reconciles it into the ledger.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// EventRecord is the payment_events row used to acknowledge redeliveries without reapplying them.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"column:provider"`
	ProviderEventID string         `gorm:"column:provider_event_id"`
	EventType       string         `gorm:"column:event_type"`
	Payload         datatypes.JSON `gorm:"column:payload"`
	ReceivedAt      time.Time      `gorm:"column:received_at"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
