package domain

import (
	"context"
	"time"
)

type ListDonationsRequest struct {
	UserID    string
	PageToken string
	PageSize  int
}

type ListDonationsResponse struct {
	Donations     []Donation `json:"donations"`
	NextPageToken string     `json:"next_page_token,omitempty"`
	HasMore       bool       `json:"has_more"`
}

// Service is the ledger: every component reads and mutates donations through it.
type Service interface {
	// CreatePending assigns an id (unless one is preset) and timestamps and writes a pending row.
	CreatePending(ctx context.Context, d Donation) (*Donation, error)
	// RecordCompleted inserts a completed row keyed by its external payment ref. When a row with
	// that ref already exists it is returned with created=false and nothing is written.
	RecordCompleted(ctx context.Context, d Donation) (donation *Donation, created bool, err error)

	GetByID(ctx context.Context, id string) (*Donation, error)
	GetByPaymentRef(ctx context.Context, ref string) (*Donation, error)
	GetByClaimToken(ctx context.Context, token string) (*Donation, error)
	GetLatestBySubscription(ctx context.Context, subscriptionRef string) (*Donation, error)
	ListByUser(ctx context.Context, req ListDonationsRequest) (ListDonationsResponse, error)

	CompleteCheckout(ctx context.Context, id string, customerRef, subscriptionRef *string) error
	TransitionStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error)
	SetSubscriptionStatus(ctx context.Context, subscriptionRef string, to Status) (int64, error)
	// BindToUser claims the row for userID. It returns false when the row was already registered
	// or claimed by the time the update ran.
	BindToUser(ctx context.Context, d Donation, userID string) (bool, error)
	AttachReceipt(ctx context.Context, id string, receiptURL *string, sentAt time.Time) error

	AppendGuestDonation(ctx context.Context, guest GuestInfo, donationID string) error
	MarkGuestAccountCreated(ctx context.Context, email string) error
}
