package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/identity"
)

// Request identifies the donation to claim by exactly one of TransactionID or ClaimToken.
type Request struct {
	TransactionID string `json:"transaction_id"`
	ClaimToken    string `json:"claim_token"`
	Email         string `json:"email"`
}

type ClaimedDonation struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Date     time.Time       `json:"date"`
	Campaign string          `json:"campaign"`
}

type Result struct {
	Success  bool            `json:"success"`
	Donation ClaimedDonation `json:"donation"`
}

type Service interface {
	Claim(ctx context.Context, caller identity.Identity, req Request) (*Result, error)
}
