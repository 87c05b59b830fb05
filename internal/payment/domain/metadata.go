package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Metadata keys written on checkout sessions, payment intents and subscriptions.
const (
	MetaDonorType         = "donor_type"
	MetaUserID            = "user_id"
	MetaGuestName         = "guest_name"
	MetaGuestEmail        = "guest_email"
	MetaReceiptEmail      = "receipt_email"
	MetaAmount            = "amount"
	MetaCurrency          = "currency"
	MetaFrequency         = "frequency"
	MetaIsRecurring       = "is_recurring"
	MetaCampaignID        = "campaign_id"
	MetaCampaignTitle     = "campaign_title"
	MetaDedicationHonoree = "dedication_in_honor_of"
	MetaDedicationMessage = "dedication_message"
	MetaClaimToken        = "claim_token"
	MetaDonationID        = "donation_id"
)

// Stripe rejects metadata values longer than this.
const maxMetadataValue = 500

// CheckoutMetadata is the donor context carried through the gateway so a webhook can rebuild
// the ledger row when the initiation write never landed.
type CheckoutMetadata struct {
	DonorType         string
	UserID            string
	GuestName         string
	GuestEmail        string
	ReceiptEmail      string
	Amount            decimal.Decimal
	Currency          string
	Frequency         string
	IsRecurring       bool
	CampaignID        string
	CampaignTitle     string
	DedicationHonoree string
	DedicationMessage string
	ClaimToken        string
	// DonationID is assigned before the session exists so payment intent events can find the row.
	DonationID string
}

func (m CheckoutMetadata) ToMap() map[string]string {
	out := map[string]string{}
	put := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		out[key] = truncateMetadata(value)
	}

	put(MetaDonorType, m.DonorType)
	put(MetaUserID, m.UserID)
	put(MetaGuestName, m.GuestName)
	put(MetaGuestEmail, m.GuestEmail)
	put(MetaReceiptEmail, m.ReceiptEmail)
	if !m.Amount.IsZero() {
		put(MetaAmount, m.Amount.String())
	}
	put(MetaCurrency, m.Currency)
	put(MetaFrequency, m.Frequency)
	put(MetaIsRecurring, strconv.FormatBool(m.IsRecurring))
	put(MetaCampaignID, m.CampaignID)
	put(MetaCampaignTitle, m.CampaignTitle)
	put(MetaDedicationHonoree, m.DedicationHonoree)
	put(MetaDedicationMessage, m.DedicationMessage)
	put(MetaClaimToken, m.ClaimToken)
	put(MetaDonationID, m.DonationID)
	return out
}

// ParseCheckoutMetadata reads the metadata bag back. Unknown keys are ignored and malformed
// numbers or booleans fall back to zero values.
func ParseCheckoutMetadata(raw map[string]string) CheckoutMetadata {
	get := func(key string) string {
		return strings.TrimSpace(raw[key])
	}

	m := CheckoutMetadata{
		DonorType:         strings.ToLower(get(MetaDonorType)),
		UserID:            get(MetaUserID),
		GuestName:         get(MetaGuestName),
		GuestEmail:        get(MetaGuestEmail),
		ReceiptEmail:      get(MetaReceiptEmail),
		Currency:          strings.ToUpper(get(MetaCurrency)),
		Frequency:         strings.ToLower(get(MetaFrequency)),
		CampaignID:        get(MetaCampaignID),
		CampaignTitle:     get(MetaCampaignTitle),
		DedicationHonoree: get(MetaDedicationHonoree),
		DedicationMessage: get(MetaDedicationMessage),
		ClaimToken:        get(MetaClaimToken),
		DonationID:        get(MetaDonationID),
	}
	if amount, err := decimal.NewFromString(get(MetaAmount)); err == nil {
		m.Amount = amount
	}
	if recurring, err := strconv.ParseBool(get(MetaIsRecurring)); err == nil {
		m.IsRecurring = recurring
	}
	return m
}

// truncateMetadata cuts value to maxMetadataValue bytes without splitting a rune.
func truncateMetadata(value string) string {
	if len(value) <= maxMetadataValue {
		return value
	}
	cut := maxMetadataValue
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
