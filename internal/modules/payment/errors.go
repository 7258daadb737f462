package payment

import "errors"

var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrUnsupportedCurrency = errors.New("currency not supported by provider")
	ErrUnsupportedMethod   = errors.New("payment method not supported by provider")
)
