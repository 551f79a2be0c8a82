package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrPaymentIncomplete  = errors.New("payment not completed")
	ErrProviderFailure    = errors.New("provider failure")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
