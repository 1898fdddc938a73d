package sms

import "errors"

var (
	ErrInvalidConfig    = errors.New("sms: invalid gateway configuration")
	ErrInvalidMessage   = errors.New("sms: invalid message")
	ErrDeliveryFailed   = errors.New("sms: delivery failed")
	ErrPermanentFailure = errors.New("sms: permanent gateway failure")
	ErrTemporaryFailure = errors.New("sms: temporary gateway failure")
	ErrGatewayTimeout   = errors.New("sms: gateway timeout")
)
