package domain

import "errors"

var (
	ErrInvalidDonation = errors.New("invalid_donation")
	ErrNoRecipient     = errors.New("receipt_no_recipient")
)
