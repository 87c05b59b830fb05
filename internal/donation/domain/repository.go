package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Donation) error
	// InsertIfAbsent inserts unless a row with the same external_payment_ref exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, d *Donation) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Donation, error)
	FindByPaymentRef(ctx context.Context, db *gorm.DB, ref string) (*Donation, error)
	FindByClaimToken(ctx context.Context, db *gorm.DB, token string) (*Donation, error)
	FindLatestBySubscriptionRef(ctx context.Context, db *gorm.DB, ref string) (*Donation, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID string, filter ListFilter) ([]*Donation, error)

	UpdateCheckoutCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, customerRef, subscriptionRef *string, now time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, from []Status, now time.Time) (bool, error)
	UpdateStatusBySubscriptionRef(ctx context.Context, db *gorm.DB, ref string, to Status, now time.Time) (int64, error)
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string, now time.Time) (bool, error)
	ClaimByToken(ctx context.Context, db *gorm.DB, token, userID string, now time.Time) (int64, error)
	UpdateReceipt(ctx context.Context, db *gorm.DB, id snowflake.ID, receiptURL *string, sentAt time.Time) error

	FindGuestDonor(ctx context.Context, db *gorm.DB, email string) (*GuestDonor, error)
	InsertGuestDonorIfAbsent(ctx context.Context, db *gorm.DB, g *GuestDonor) (bool, error)
	SwapGuestDonationIDs(ctx context.Context, db *gorm.DB, email string, ids []string, expectedVersion int64, now time.Time) (bool, error)
	MarkGuestAccountCreated(ctx context.Context, db *gorm.DB, email string, now time.Time) error
}

type ListFilter struct {
	Limit         int
	CreatedBefore *time.Time
	BeforeID      snowflake.ID
}
