package webhook

import (
	"strings"

	"github.com/shopspring/decimal"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
)

const defaultCurrency = "USD"

// donationFromMetadata rebuilds a ledger row from checkout metadata. The donor type is
// downgraded when the metadata lacks the identity it requires, so the row never carries a
// donor type its identity columns contradict.
func donationFromMetadata(meta paymentdomain.CheckoutMetadata, fallbackAmount decimal.Decimal, fallbackCurrency, customerEmail string) donationdomain.Donation {
	d := donationdomain.Donation{
		Amount:        meta.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(meta.Currency)),
		IsRecurring:   meta.IsRecurring,
		CampaignID:    donationdomain.StringPtr(meta.CampaignID),
		CampaignTitle: donationdomain.StringPtr(meta.CampaignTitle),
	}
	if !d.Amount.IsPositive() {
		d.Amount = fallbackAmount
	}
	if d.Currency == "" {
		d.Currency = strings.ToUpper(strings.TrimSpace(fallbackCurrency))
	}
	if d.Currency == "" {
		d.Currency = defaultCurrency
	}

	d.Frequency = donationdomain.FrequencyOneTime
	if freq, ok := donationdomain.ParseFrequency(meta.Frequency); ok {
		d.Frequency = freq
	}
	if d.IsRecurring && d.Frequency == donationdomain.FrequencyOneTime {
		d.Frequency = donationdomain.FrequencyMonthly
	}

	d.SetDedication(&donationdomain.Dedication{
		InHonorOf: meta.DedicationHonoree,
		Message:   meta.DedicationMessage,
	})

	donorType, _ := donationdomain.ParseDonorType(meta.DonorType)
	guestEmail := strings.TrimSpace(meta.GuestEmail)
	switch {
	case donorType == donationdomain.DonorTypeRegistered && strings.TrimSpace(meta.UserID) != "":
		d.DonorType = donationdomain.DonorTypeRegistered
		d.UserID = donationdomain.StringPtr(meta.UserID)
	case donorType == donationdomain.DonorTypeGuest && guestEmail != "",
		donorType == donationdomain.DonorTypeRegistered && guestEmail != "":
		d.DonorType = donationdomain.DonorTypeGuest
		d.SetGuest(&donationdomain.GuestInfo{Name: strings.TrimSpace(meta.GuestName), Email: guestEmail})
	default:
		d.DonorType = donationdomain.DonorTypeAnonymous
	}

	if d.DonorType != donationdomain.DonorTypeRegistered {
		token := strings.TrimSpace(meta.ClaimToken)
		if token == "" {
			token = donationdomain.NewClaimToken()
		}
		d.ClaimToken = &token
	}

	receiptEmail := firstNonEmpty(meta.ReceiptEmail, guestEmail, customerEmail)
	d.ReceiptEmail = donationdomain.StringPtr(receiptEmail)
	return d
}

// cloneForCycle copies the donor identity and campaign context of an earlier row for a new
// billing cycle. Payment refs, amount and timestamps are left for the caller.
func cloneForCycle(src donationdomain.Donation) donationdomain.Donation {
	d := donationdomain.Donation{
		DonorType:           src.DonorType,
		UserID:              src.UserID,
		GuestName:           src.GuestName,
		GuestEmail:          src.GuestEmail,
		ReceiptEmail:        src.ReceiptEmail,
		ExternalCustomerRef: src.ExternalCustomerRef,
		Amount:              src.Amount,
		Currency:            src.Currency,
		IsRecurring:         true,
		Frequency:           src.Frequency,
		CampaignID:          src.CampaignID,
		CampaignTitle:       src.CampaignTitle,
		DedicationHonoree:   src.DedicationHonoree,
		DedicationMessage:   src.DedicationMessage,
	}
	if d.Frequency == "" || d.Frequency == donationdomain.FrequencyOneTime {
		d.Frequency = donationdomain.FrequencyMonthly
	}
	if src.DonorType != donationdomain.DonorTypeRegistered {
		d.ClaimToken = src.ClaimToken
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
