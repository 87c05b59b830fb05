package domain

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidFrequency   = errors.New("invalid_frequency")
	ErrInvalidDonorType   = errors.New("invalid_donor_type")
	ErrGuestNameRequired  = errors.New("guest_name_required")
	ErrGuestEmailRequired = errors.New("guest_email_required")
)
