package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentNotAllowed   = errors.New("donation cannot accept a new payment")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrForbidden           = errors.New("forbidden")
)
