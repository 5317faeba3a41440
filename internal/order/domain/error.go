package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrPaymentRequired   = errors.New("payment_required")
	ErrNotFound          = errors.New("not_found")
	ErrConflict          = errors.New("conflict")
)
