package domain

import "errors"

var (
	ErrIdentifierRequired = errors.New("claim_identifier_required")
	ErrAlreadyLinked      = errors.New("already_linked")
	ErrAlreadyClaimed     = errors.New("already_claimed")
	ErrEmailMismatch      = errors.New("email_mismatch")
)
