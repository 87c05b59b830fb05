package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/identity"
)

type GuestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Dedication struct {
	InHonorOf string `json:"in_honor_of"`
	Message   string `json:"message"`
}

// Request is the donation form submitted by the checkout page.
type Request struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	IsRecurring   bool            `json:"isRecurring"`
	Frequency     string          `json:"frequency"`
	DonorType     string          `json:"donorType"`
	IsAnonymous   *bool           `json:"isAnonymous,omitempty"`
	GuestInfo     *GuestInfo      `json:"guestInfo,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	CampaignID    string          `json:"campaignId,omitempty"`
	CampaignTitle string          `json:"campaignTitle,omitempty"`
	Dedication    *Dedication     `json:"dedication,omitempty"`
}

// Result carries the hosted checkout redirect. DonationID is nil when the pending ledger write
// failed; the webhook recreates the row in that case.
type Result struct {
	URL        *string `json:"url"`
	SessionID  *string `json:"session_id"`
	DonationID *string `json:"donation_id"`
	ClaimToken *string `json:"claim_token"`
}

type Service interface {
	Initiate(ctx context.Context, req Request, caller identity.Resolution) (*Result, error)
}
