package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DonorType string

const (
	DonorTypeAnonymous  DonorType = "anonymous"
	DonorTypeGuest      DonorType = "guest"
	DonorTypeRegistered DonorType = "registered"
)

func ParseDonorType(raw string) (DonorType, bool) {
	switch DonorType(strings.ToLower(strings.TrimSpace(raw))) {
	case DonorTypeAnonymous:
		return DonorTypeAnonymous, true
	case DonorTypeGuest:
		return DonorTypeGuest, true
	case DonorTypeRegistered:
		return DonorTypeRegistered, true
	}
	return "", false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

type Frequency string

const (
	FrequencyOneTime Frequency = "one-time"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func ParseFrequency(raw string) (Frequency, bool) {
	switch Frequency(strings.ToLower(strings.TrimSpace(raw))) {
	case FrequencyOneTime:
		return FrequencyOneTime, true
	case FrequencyWeekly:
		return FrequencyWeekly, true
	case FrequencyMonthly:
		return FrequencyMonthly, true
	case FrequencyYearly:
		return FrequencyYearly, true
	}
	return "", false
}

// Interval is the gateway billing interval for a recurring frequency.
func (f Frequency) Interval() string {
	switch f {
	case FrequencyWeekly:
		return "week"
	case FrequencyYearly:
		return "year"
	default:
		return "month"
	}
}

type GuestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Dedication struct {
	InHonorOf string `json:"in_honor_of,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Donation is one ledger row: a single checkout attempt or a single recurring cycle.
type Donation struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	DonorType           DonorType       `gorm:"column:donor_type" json:"donor_type"`
	UserID              *string         `gorm:"column:user_id" json:"user_id,omitempty"`
	GuestName           *string         `gorm:"column:guest_name" json:"-"`
	GuestEmail          *string         `gorm:"column:guest_email" json:"-"`
	ReceiptEmail        *string         `gorm:"column:receipt_email" json:"-"`
	ExternalPaymentRef  string          `gorm:"column:external_payment_ref" json:"external_payment_ref"`
	ExternalCustomerRef *string         `gorm:"column:external_customer_ref" json:"external_customer_ref,omitempty"`
	Amount              decimal.Decimal `gorm:"column:amount" json:"amount"`
	Currency            string          `gorm:"column:currency" json:"currency"`
	Status              Status          `gorm:"column:status" json:"status"`
	IsRecurring         bool            `gorm:"column:is_recurring" json:"is_recurring"`
	SubscriptionRef     *string         `gorm:"column:subscription_ref" json:"subscription_ref,omitempty"`
	Frequency           Frequency       `gorm:"column:frequency" json:"frequency"`
	CampaignID          *string         `gorm:"column:campaign_id" json:"campaign_id,omitempty"`
	CampaignTitle       *string         `gorm:"column:campaign_title" json:"campaign_title,omitempty"`
	DedicationHonoree   *string         `gorm:"column:dedication_honoree" json:"-"`
	DedicationMessage   *string         `gorm:"column:dedication_message" json:"-"`
	ClaimToken          *string         `gorm:"column:claim_token" json:"-"`
	IsClaimed           bool            `gorm:"column:is_claimed" json:"is_claimed"`
	ReceiptURL          *string         `gorm:"column:receipt_url" json:"receipt_url,omitempty"`
	ReceiptSentAt       *time.Time      `gorm:"column:receipt_sent_at" json:"receipt_sent_at,omitempty"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Donation) TableName() string { return "donations" }

// Guest returns the guest identity, or nil unless the row is a guest donation.
func (d Donation) Guest() *GuestInfo {
	if d.DonorType != DonorTypeGuest || d.GuestEmail == nil {
		return nil
	}
	info := &GuestInfo{Email: *d.GuestEmail}
	if d.GuestName != nil {
		info.Name = *d.GuestName
	}
	return info
}

func (d *Donation) SetGuest(info *GuestInfo) {
	if info == nil {
		d.GuestName, d.GuestEmail = nil, nil
		return
	}
	name, email := info.Name, info.Email
	d.GuestName, d.GuestEmail = &name, &email
}

func (d Donation) Dedication() *Dedication {
	if d.DedicationHonoree == nil && d.DedicationMessage == nil {
		return nil
	}
	out := &Dedication{}
	if d.DedicationHonoree != nil {
		out.InHonorOf = *d.DedicationHonoree
	}
	if d.DedicationMessage != nil {
		out.Message = *d.DedicationMessage
	}
	return out
}

func (d *Donation) SetDedication(ded *Dedication) {
	d.DedicationHonoree, d.DedicationMessage = nil, nil
	if ded == nil {
		return
	}
	d.DedicationHonoree = StringPtr(ded.InHonorOf)
	d.DedicationMessage = StringPtr(ded.Message)
}

// Campaign is the display label for the campaign, preferring its title.
func (d Donation) Campaign() string {
	if d.CampaignTitle != nil && *d.CampaignTitle != "" {
		return *d.CampaignTitle
	}
	if d.CampaignID != nil {
		return *d.CampaignID
	}
	return ""
}

// Claimable reports whether a claim token can still bind this row to an account.
func (d Donation) Claimable() bool {
	return d.ClaimToken != nil && !d.IsClaimed && d.DonorType != DonorTypeRegistered
}

// GuestDonor indexes guest donations by normalized email until the donor registers.
type GuestDonor struct {
	Email            string     `gorm:"primaryKey;column:email"`
	Name             string     `gorm:"column:name"`
	DonationIDs      []string   `gorm:"-"`
	AccountCreatedAt *time.Time `gorm:"column:account_created_at"`
	Version          int64      `gorm:"column:version"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

// Contains reports whether id is already tracked.
func (g GuestDonor) Contains(id string) bool {
	for _, existing := range g.DonationIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringPtr returns nil for blank input so optional columns stay NULL.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

const claimTokenPrefix = "clm_"

// NewClaimToken returns a random, donor-held token for unauthenticated donations.
func NewClaimToken() string {
	return claimTokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
