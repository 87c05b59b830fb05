package domain

import "errors"

var (
	ErrNotFound           = errors.New("donation_not_found")
	ErrInvalidID          = errors.New("invalid_donation_id")
	ErrInvalidPaymentRef  = errors.New("invalid_external_payment_ref")
	ErrGuestDonorConflict = errors.New("guest_donor_update_conflict")
)
