package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/donation/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const donationColumns = `id, donor_type, user_id, guest_name, guest_email, receipt_email,
	external_payment_ref, external_customer_ref, amount, currency, status, is_recurring,
	subscription_ref, frequency, campaign_id, campaign_title, dedication_honoree, dedication_message,
	claim_token, is_claimed, receipt_url, receipt_sent_at, created_at, updated_at`

const insertDonation = `INSERT INTO donations (` + donationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func donationArgs(d *domain.Donation) []any {
	return []any{
		d.ID,
		d.DonorType,
		d.UserID,
		d.GuestName,
		d.GuestEmail,
		d.ReceiptEmail,
		d.ExternalPaymentRef,
		d.ExternalCustomerRef,
		d.Amount,
		d.Currency,
		d.Status,
		d.IsRecurring,
		d.SubscriptionRef,
		d.Frequency,
		d.CampaignID,
		d.CampaignTitle,
		d.DedicationHonoree,
		d.DedicationMessage,
		d.ClaimToken,
		d.IsClaimed,
		d.ReceiptURL,
		d.ReceiptSentAt,
		d.CreatedAt,
		d.UpdatedAt,
	}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.Donation) error {
	return db.WithContext(ctx).Exec(insertDonation, donationArgs(d)...).Error
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, d *domain.Donation) (bool, error) {
	result := db.WithContext(ctx).Exec(
		insertDonation+` ON CONFLICT (external_payment_ref) DO NOTHING`,
		donationArgs(d)...,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Donation, error) {
	var d domain.Donation
	err := db.WithContext(ctx).Raw(
		`SELECT `+donationColumns+` FROM donations WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Donation, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByPaymentRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Donation, error) {
	return r.findOne(ctx, db, `external_payment_ref = ?`, ref)
}

// FindByClaimToken returns the originating row; later recurring cycles carry the same token.
func (r *repo) FindByClaimToken(ctx context.Context, db *gorm.DB, token string) (*domain.Donation, error) {
	return r.findOne(ctx, db, `claim_token = ? ORDER BY created_at ASC, id ASC`, token)
}

func (r *repo) FindLatestBySubscriptionRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Donation, error) {
	return r.findOne(ctx, db, `subscription_ref = ? ORDER BY created_at DESC, id DESC`, ref)
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID string, filter domain.ListFilter) ([]*domain.Donation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + donationColumns + ` FROM donations WHERE user_id = ?`
	args := []any{userID}
	if filter.CreatedBefore != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, *filter.CreatedBefore, *filter.CreatedBefore, filter.BeforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var donations []*domain.Donation
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&donations).Error; err != nil {
		return nil, err
	}
	return donations, nil
}

// UpdateCheckoutCompleted records the gateway refs and completes the row only from pending or
// failed. A late checkout event leaves a canceled subscription canceled.
func (r *repo) UpdateCheckoutCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, customerRef, subscriptionRef *string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET status = CASE WHEN status IN (?, ?) THEN ? ELSE status END,
		     external_customer_ref = COALESCE(?, external_customer_ref),
		     subscription_ref = COALESCE(?, subscription_ref),
		     updated_at = ?
		 WHERE id = ?`,
		domain.StatusPending,
		domain.StatusFailed,
		domain.StatusCompleted,
		customerRef,
		subscriptionRef,
		now,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, from []domain.Status, now time.Time) (bool, error) {
	stmt := `UPDATE donations SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{to, now, id}
	if len(from) > 0 {
		stmt += ` AND status IN ?`
		args = append(args, from)
	}
	result := db.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateStatusBySubscriptionRef(ctx context.Context, db *gorm.DB, ref string, to domain.Status, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE donations SET status = ?, updated_at = ? WHERE subscription_ref = ? AND status <> ?`,
		to,
		now,
		ref,
		to,
	)
	return result.RowsAffected, result.Error
}

// Claim binds the row to userID only while it is still an unclaimed, non-registered donation.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, userID string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET user_id = ?, donor_type = ?, is_claimed = ?, guest_name = NULL, guest_email = NULL, updated_at = ?
		 WHERE id = ? AND is_claimed = ? AND donor_type <> ?`,
		userID,
		domain.DonorTypeRegistered,
		true,
		now,
		id,
		false,
		domain.DonorTypeRegistered,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ClaimByToken(ctx context.Context, db *gorm.DB, token, userID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET user_id = ?, donor_type = ?, is_claimed = ?, guest_name = NULL, guest_email = NULL, updated_at = ?
		 WHERE claim_token = ? AND is_claimed = ? AND donor_type <> ?`,
		userID,
		domain.DonorTypeRegistered,
		true,
		now,
		token,
		false,
		domain.DonorTypeRegistered,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateReceipt(ctx context.Context, db *gorm.DB, id snowflake.ID, receiptURL *string, sentAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE donations
		 SET receipt_url = COALESCE(?, receipt_url), receipt_sent_at = ?, updated_at = ?
		 WHERE id = ?`,
		receiptURL,
		sentAt,
		sentAt,
		id,
	).Error
}

type guestDonorRow struct {
	Email            string         `gorm:"column:email"`
	Name             string         `gorm:"column:name"`
	DonationIDs      datatypes.JSON `gorm:"column:donation_ids"`
	AccountCreatedAt *time.Time     `gorm:"column:account_created_at"`
	Version          int64          `gorm:"column:version"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at"`
}

func (r *repo) FindGuestDonor(ctx context.Context, db *gorm.DB, email string) (*domain.GuestDonor, error) {
	var row guestDonorRow
	err := db.WithContext(ctx).Raw(
		`SELECT email, name, donation_ids, account_created_at, version, created_at, updated_at
		 FROM guest_donors WHERE email = ?`,
		email,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Email == "" {
		return nil, nil
	}

	ids := []string{}
	if len(row.DonationIDs) > 0 {
		if err := json.Unmarshal(row.DonationIDs, &ids); err != nil {
			return nil, err
		}
	}
	return &domain.GuestDonor{
		Email:            row.Email,
		Name:             row.Name,
		DonationIDs:      ids,
		AccountCreatedAt: row.AccountCreatedAt,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (r *repo) InsertGuestDonorIfAbsent(ctx context.Context, db *gorm.DB, g *domain.GuestDonor) (bool, error) {
	ids, err := encodeIDs(g.DonationIDs)
	if err != nil {
		return false, err
	}
	result := db.WithContext(ctx).Exec(
		`INSERT INTO guest_donors (email, name, donation_ids, account_created_at, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		g.Email,
		g.Name,
		ids,
		g.AccountCreatedAt,
		g.Version,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SwapGuestDonationIDs writes ids only if nobody else bumped the version since it was read.
func (r *repo) SwapGuestDonationIDs(ctx context.Context, db *gorm.DB, email string, ids []string, expectedVersion int64, now time.Time) (bool, error) {
	encoded, err := encodeIDs(ids)
	if err != nil {
		return false, err
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE guest_donors
		 SET donation_ids = ?, version = version + 1, updated_at = ?
		 WHERE email = ? AND version = ?`,
		encoded,
		now,
		email,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkGuestAccountCreated(ctx context.Context, db *gorm.DB, email string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE guest_donors
		 SET account_created_at = COALESCE(account_created_at, ?), updated_at = ?
		 WHERE email = ?`,
		now,
		now,
		email,
	).Error
}

func encodeIDs(ids []string) (datatypes.JSON, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
