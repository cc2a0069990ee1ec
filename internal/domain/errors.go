package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrBalanceCap          = errors.New("balance cap exceeded")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different parameters")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrIntegrationMissing  = errors.New("integration not connected")
	ErrProviderFailure     = errors.New("provider failure")
)
